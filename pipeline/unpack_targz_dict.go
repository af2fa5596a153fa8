package pipeline

import (
	"io"
	"path"

	"github.com/tobozo/go-targz/errcode"
	"github.com/tobozo/go-targz/gzip"
	"github.com/tobozo/go-targz/progress"
	"github.com/tobozo/go-targz/storage"
	"github.com/tobozo/go-targz/ustar"
)

// UnpackTarGzWithDict runs the "unpack tar.gz with dictionary, no temp
// file" scenario: a windowed gzip.Reader fills one sector at a time, and
// that sector is handed to the tar reader 512 bytes at a tap — N taps
// per sector, where N = SectorSize/512 — so a dictionary-backed INFLATE
// step and the fixed tar record size stay in lockstep without ever
// buffering more than one sector. Entries are extracted under destRoot
// on adapter.
func (p *Pipeline) UnpackTarGzWithDict(src io.Reader, adapter storage.Adapter, destRoot string, onEntry progress.EntryFunc) error {
	if err := p.start(ScenarioUnpackTarGzWithDict); err != nil {
		return err
	}

	sectorLen := p.cfg.SectorSize
	if sectorLen%ustar.BlockSize != 0 {
		return p.fail(errcode.GzDeflateFail, nil)
	}
	tapsPerSector := sectorLen / ustar.BlockSize

	gz := gzip.NewReader()
	tr := ustar.NewReader()
	tr.Logger = p.cfg.Log

	ent := progress.NewEntry(onEntry)
	var cur storage.Handle
	var entriesWritten, skipped int

	tr.OnHeader = func(h ustar.Header) error {
		full := path.Join(destRoot, h.Name)
		if h.IsDir() {
			return adapter.MkdirParents(full)
		}
		if err := adapter.MkdirParents(path.Dir(full)); err != nil {
			return err
		}
		h2, err := adapter.Open(full, storage.WriteOnly)
		if err != nil {
			return err
		}
		cur = h2
		ent.Report(h.Name, h.Size)
		return nil
	}
	tr.OnData = func(h ustar.Header, block []byte) error {
		if cur == nil {
			return nil
		}
		_, err := cur.Write(block)
		return err
	}
	tr.OnEnd = func(h ustar.Header) error {
		if cur == nil {
			entriesWritten++
			return nil
		}
		err := cur.Close()
		cur = nil
		if err == nil {
			entriesWritten++
			if p.cfg.VerifyAfterWrite {
				err = verifyExtracted(adapter, path.Join(destRoot, h.Name), h.Size)
			}
		}
		return err
	}
	tr.OnSkip = func(ustar.Header) { skipped++ }

	sector := make([]byte, sectorLen)
	readBuf := make([]byte, sectorLen)
	var totalIn int64
	filled := 0

	drainSector := func(n int, final bool) error {
		if n%ustar.BlockSize != 0 {
			return p.fail(errcode.GzDeflateFail, nil)
		}
		if !final && n != tapsPerSector*ustar.BlockSize {
			return p.fail(errcode.GzDeflateFail, nil)
		}
		taps := n / ustar.BlockSize
		for i := 0; i < taps; i++ {
			block := sector[i*ustar.BlockSize : (i+1)*ustar.BlockSize]
			if err := tr.Feed(block); err != nil {
				return p.fail(codeForTarError(err), err)
			}
		}
		totalIn += int64(n)
		return nil
	}

	for {
		n, gzDone, derr := gz.Read(sector[filled:])
		if derr != nil {
			return p.fail(codeForGzError(derr), derr)
		}
		filled += n

		if gzDone {
			if err := drainSector(filled, true); err != nil {
				return err
			}
			break
		}

		if filled == sectorLen {
			if err := drainSector(filled, false); err != nil {
				return err
			}
			filled = 0
			continue
		}

		if n == 0 {
			m, rerr := src.Read(readBuf)
			if m > 0 {
				gz.Feed(readBuf[:m])
			}
			if rerr == io.EOF && m == 0 {
				return p.fail(errcode.GzReadFail, nil)
			}
			if rerr != nil && rerr != io.EOF {
				return p.fail(errcode.StreamError, rerr)
			}
		}
	}

	if !tr.Done() {
		return p.fail(errcode.TarReadBlockFail, nil)
	}

	p.result.BytesIn = totalIn
	p.result.EntriesWritten = entriesWritten
	p.result.SkippedEntries = skipped
	p.finish()
	return nil
}

// codeForTarError maps an error carrying one of the listed tar codes
// through unchanged and every other error to TarHeaderParseFail (which
// is also the code ustar gives a header whose numeric fields do not
// parse).
func codeForTarError(err error) errcode.CodeError {
	for _, c := range []errcode.CodeError{
		errcode.TarHeaderCbFail,
		errcode.TarDataCbFail,
		errcode.TarFooterCbFail,
		errcode.TarHeaderTransFail,
		errcode.FilenameTooLong,
	} {
		if errcode.IsCode(err, c) {
			return c
		}
	}
	return errcode.TarHeaderParseFail
}

// verifyExtracted re-stats path after a write as an opt-in slow-path
// check: existence and declared-size agreement.
func verifyExtracted(adapter storage.Adapter, p string, wantSize int64) error {
	if !adapter.Exists(p) {
		return errcode.New(errcode.FsError)
	}
	info, err := adapter.Stat(p)
	if err != nil {
		return errcode.Wrap(errcode.FsError, err)
	}
	if info.Size != wantSize {
		return errcode.New(errcode.ReadSizeError)
	}
	return nil
}
