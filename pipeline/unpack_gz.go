package pipeline

import (
	"io"

	"github.com/tobozo/go-targz/errcode"
	"github.com/tobozo/go-targz/gzip"
	"github.com/tobozo/go-targz/progress"
	"github.com/tobozo/go-targz/storage"
)

// UnpackGzToFile runs the "unpack gz→file" scenario: src is a raw gzip
// member, dst is the destination path on adapter. expectedUncompressed
// feeds the percent reporter (0 disables it — streaming sources rarely
// know their uncompressed size up front). It chooses windowed INFLATE
// unless LowMemory is set, in which case it falls back to
// sink-reflective mode against dst's own already-written bytes — which
// requires the adapter's Handle to satisfy io.ReaderAt (true of
// storage.OSAdapter's *os.File handles; storage.MemoryAdapter's do not,
// so LowMemory against it degrades to windowed, with a Debug-level trace).
func (p *Pipeline) UnpackGzToFile(src io.Reader, adapter storage.Adapter, dst string, expectedUncompressed int64, onPercent progress.PercentFunc) error {
	if err := p.start(ScenarioUnpackGzToFile); err != nil {
		return err
	}

	w, err := adapter.Open(dst, storage.WriteOnly)
	if err != nil {
		return p.fail(errcode.FsError, err)
	}
	defer w.Close()

	reflective := p.cfg.LowMemory
	var ra io.ReaderAt
	if reflective {
		if r, ok := w.(io.ReaderAt); ok {
			ra = r
		} else {
			reflective = false
			if p.cfg.Log != nil {
				p.cfg.Log.Debugf("pipeline: low-memory mode requested but destination handle has no ReaderAt, falling back to windowed INFLATE")
			}
		}
	}

	var totalWritten int64
	var gz *gzip.Reader
	if reflective {
		readEmitted := func(distance uint32) (byte, error) {
			offset := totalWritten - int64(distance)
			if offset < 0 {
				return 0, errcode.New(errcode.NeedsDictionary)
			}
			var b [1]byte
			if _, err := ra.ReadAt(b[:], offset); err != nil {
				return 0, errcode.Wrap(errcode.StreamError, err)
			}
			return b[0], nil
		}
		gz = gzip.NewReflectiveReader(readEmitted)
	} else {
		gz = gzip.NewReader()
	}

	pct := progress.NewPercent(onPercent)
	sector := make([]byte, p.cfg.SectorSize)
	readBuf := make([]byte, p.cfg.SectorSize)

	for {
		n, done, derr := gz.Read(sector)
		if derr != nil {
			return p.fail(codeForGzError(derr), derr)
		}
		if n > 0 {
			if _, werr := w.Write(sector[:n]); werr != nil {
				return p.fail(errcode.WriteError, werr)
			}
			totalWritten += int64(n)
			pct.Report(totalWritten, expectedUncompressed)
		}
		if done {
			break
		}
		if n == 0 {
			m, rerr := src.Read(readBuf)
			if m > 0 {
				gz.Feed(readBuf[:m])
			}
			if rerr == io.EOF {
				if m == 0 {
					return p.fail(errcode.GzReadFail, nil)
				}
				continue
			}
			if rerr != nil {
				return p.fail(errcode.StreamError, rerr)
			}
		}
	}

	if expectedUncompressed > 0 && totalWritten != expectedUncompressed {
		return p.fail(errcode.IntegrityFail, nil)
	}

	p.result.BytesOut = totalWritten
	p.finish()
	return nil
}

// codeForGzError maps a gzip/deflate failure surfaced mid-stream onto
// the taxonomy's codec-specific members, defaulting to GzDeflateFail
// for anything not already one of this module's typed errors.
func codeForGzError(err error) errcode.CodeError {
	for _, c := range []errcode.CodeError{
		errcode.ChecksumError,
		errcode.IntegrityFail,
		errcode.DataError,
		errcode.InvalidFile,
		errcode.DictError,
		errcode.NeedsDictionary,
	} {
		if errcode.IsCode(err, c) {
			return c
		}
	}
	return errcode.GzDeflateFail
}
