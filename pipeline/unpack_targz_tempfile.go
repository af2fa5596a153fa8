package pipeline

import (
	"io"
	"path"

	"github.com/tobozo/go-targz/errcode"
	"github.com/tobozo/go-targz/progress"
	"github.com/tobozo/go-targz/storage"
	"github.com/tobozo/go-targz/ustar"
)

const tempFileName = ".go-targz-unpack.tmp"

// UnpackTarGz picks between the dictionary scenario and the two-phase
// temp-file fallback for unpacking tar.gz without a dictionary window:
// sink-reflective INFLATE is forbidden against the tar reader (it is
// neither seekable nor readable-back), so LowMemory without a
// configured TempStorage fails NeedsDictionary rather than silently
// corrupting output.
func (p *Pipeline) UnpackTarGz(src io.Reader, adapter storage.Adapter, destRoot string, onEntry progress.EntryFunc) error {
	if !p.cfg.LowMemory {
		return p.UnpackTarGzWithDict(src, adapter, destRoot, onEntry)
	}
	if p.cfg.TempStorage == nil {
		if err := p.start(ScenarioUnpackTarGzTempFile); err != nil {
			return err
		}
		return p.fail(errcode.NeedsDictionary, nil)
	}
	return p.UnpackTarGzTempFile(src, adapter, destRoot, onEntry)
}

// UnpackTarGzTempFile runs the two-phase fallback: phase one decodes the
// whole gzip member to a file on TempStorage in LowMemory mode, which is
// sink-reflective INFLATE when the temp handle implements io.ReaderAt
// (cheap on heap, needs only the current sector plus however much of the
// temp file the OS keeps hot) and windowed INFLATE otherwise; phase two
// streams that temp
// file sequentially through the tar reader, which never needs to
// re-read anything. The temp file is removed from TempStorage once
// phase two completes, success or failure.
func (p *Pipeline) UnpackTarGzTempFile(src io.Reader, adapter storage.Adapter, destRoot string, onEntry progress.EntryFunc) error {
	if err := p.start(ScenarioUnpackTarGzTempFile); err != nil {
		return err
	}
	if p.cfg.TempStorage == nil {
		return p.fail(errcode.NeedsDictionary, nil)
	}

	temp := p.cfg.TempStorage
	defer temp.Remove(tempFileName)

	phase1 := New(WithSectorSize(p.cfg.SectorSize), WithLog(p.cfg.Log), WithLowMemory())
	if err := phase1.UnpackGzToFile(src, temp, tempFileName, 0, nil); err != nil {
		return p.fail(errcode.GzDeflateFail, err)
	}

	r, err := temp.Open(tempFileName, storage.ReadOnly)
	if err != nil {
		return p.fail(errcode.FsError, err)
	}
	defer r.Close()

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

	buf := make([]byte, p.cfg.SectorSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := tr.Feed(buf[:n]); err != nil {
				return p.fail(codeForTarError(err), err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return p.fail(errcode.StreamError, rerr)
		}
	}

	if !tr.Done() {
		return p.fail(errcode.TarReadBlockFail, nil)
	}

	p.result.BytesIn = phase1.Result().BytesOut
	p.result.EntriesWritten = entriesWritten
	p.result.SkippedEntries = skipped
	p.finish()
	return nil
}
