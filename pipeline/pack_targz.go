package pipeline

import (
	"io"

	"github.com/tobozo/go-targz/errcode"
	"github.com/tobozo/go-targz/gzip"
	"github.com/tobozo/go-targz/progress"
	"github.com/tobozo/go-targz/ustar"
)

// PackEntry is one item to archive: either a regular file (Source must
// be non-nil and yield exactly Size bytes) or a directory (Source is
// ignored).
type PackEntry struct {
	ArchivePath string
	Kind        ustar.Kind
	Size        int64
	Mtime       int64
	Source      io.Reader
}

// PackTarGz runs the "pack tar.gz in one pass" scenario: each entry is
// streamed through ustar.Writer into a gzip.Writer, and compressed bytes
// reach dst as they are produced. The DEFLATE stage's LZ77 match history
// keeps every uncompressed tar byte, so memory use grows with the
// archive. declaredSize,
// when positive, is cross-checked against the sum of bytes the tar
// writer actually emits for file bodies. A mismatch still finalizes a
// syntactically valid archive (so it can be inspected) rather than
// aborting mid-stream, so the check happens only after Close.
func (p *Pipeline) PackTarGz(dst io.Writer, entries []PackEntry, declaredSize int64, onEntry progress.EntryFunc) error {
	if err := p.start(ScenarioPackTarGz); err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	tw := ustar.NewWriter(gz)
	ent := progress.NewEntry(onEntry)

	var bodyBytes int64
	for _, e := range entries {
		we := ustar.Entry{
			ArchivePath: e.ArchivePath,
			Kind:        e.Kind,
			Size:        e.Size,
			Mtime:       e.Mtime,
			Source:      e.Source,
		}
		if err := tw.WriteEntry(we); err != nil {
			_ = tw.Close()
			_ = gz.Close()
			return p.fail(codeForPackError(err), err)
		}
		if e.Kind == ustar.KindFile {
			bodyBytes += e.Size
		}
		ent.Report(e.ArchivePath, e.Size)
	}

	predicted := tw.PredictedSize()
	if err := tw.Close(); err != nil {
		_ = gz.Close()
		return p.fail(errcode.GzDeflateFail, err)
	}
	if tw.ActualSize() != predicted {
		_ = gz.Close()
		return p.fail(errcode.GzDeflateFail, nil)
	}

	if err := gz.Close(); err != nil {
		return p.fail(errcode.WriteError, err)
	}

	p.result.BytesOut = tw.ActualSize()
	p.result.EntriesWritten = len(entries)

	if declaredSize > 0 && bodyBytes != declaredSize {
		return p.fail(errcode.IntegrityFail, nil)
	}

	p.finish()
	return nil
}

func codeForPackError(err error) errcode.CodeError {
	for _, c := range []errcode.CodeError{
		errcode.FilenameTooLong,
		errcode.IntegrityFail,
		errcode.WriteError,
	} {
		if errcode.IsCode(err, c) {
			return c
		}
	}
	return errcode.WriteError
}
