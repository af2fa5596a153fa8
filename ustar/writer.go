package ustar

import (
	"io"

	"github.com/tobozo/go-targz/errcode"
)

// Entry describes one file or directory to add to an archive.
type Entry struct {
	ArchivePath string
	Kind        Kind
	Size        int64
	Mtime       int64
	// Source supplies the entry's bytes for Kind == KindFile. It is read
	// to EOF and must yield exactly Size bytes; a short or long read is
	// IntegrityFail.
	Source io.Reader
}

// Kind classifies a Writer entry. Only File and Dir are produced; other
// ustar typeflags are a reader-side concern.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

const (
	modeFile = 0755
	modeDir  = 0755
)

// Writer streams ustar records to dst. The zero value is not usable;
// construct with NewWriter.
type Writer struct {
	dst    io.Writer
	closed bool

	// predictedTotal is the upper bound computed as entries are queued,
	// exposed via PredictedSize for progress reporters.
	predictedTotal int64
	actualTotal    int64
}

// NewWriter returns a Writer that emits records to dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst}
}

// PredictedSize returns the tight upper bound Σ(512+size+pad)+1024 for
// every entry written so far, plus the still-unwritten two-zero-block
// trailer.
func (w *Writer) PredictedSize() int64 {
	return w.predictedTotal + 1024
}

// ActualSize returns the number of bytes actually emitted so far.
func (w *Writer) ActualSize() int64 {
	return w.actualTotal
}

// WriteEntry emits one entry: its header record, and for KindFile, its
// data padded to a 512-byte boundary.
func (w *Writer) WriteEntry(e Entry) error {
	if w.closed {
		return errcode.New(errcode.WriteError)
	}

	name := e.ArchivePath
	size := e.Size
	typeflag := TypeRegular
	mode := int64(modeFile)

	switch e.Kind {
	case KindDir:
		typeflag = TypeDirectory
		mode = modeDir
		size = 0
		if len(name) == 0 || name[len(name)-1] != '/' {
			name += "/"
		}
	case KindFile:
		// typeflag/mode already set above
	}

	w.predictedTotal += int64(BlockSize) + int64(numBlocks(size))*BlockSize

	h := Header{
		Name:     name,
		Mode:     mode,
		UID:      0,
		GID:      0,
		Size:     size,
		Mtime:    e.Mtime,
		Typeflag: typeflag,
		Uname:    "root",
		Gname:    "root",
	}

	record, err := h.marshal()
	if err != nil {
		return err
	}
	if err := w.write(record); err != nil {
		return err
	}

	if e.Kind != KindFile || size == 0 {
		return nil
	}
	return w.writeData(e.Source, size)
}

func (w *Writer) writeData(src io.Reader, size int64) error {
	var written int64
	block := make([]byte, BlockSize)
	for written < size {
		n, err := io.ReadFull(src, block)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return errcode.Wrap(errcode.StreamError, err)
		}
		written += int64(n)
		if written > size {
			return errcode.New(errcode.IntegrityFail)
		}
		if n < BlockSize {
			for i := n; i < BlockSize; i++ {
				block[i] = 0
			}
		}
		if err := w.write(block); err != nil {
			return err
		}
		if n < BlockSize {
			break
		}
	}
	if written != size {
		return errcode.New(errcode.IntegrityFail)
	}
	var probe [1]byte
	if n, _ := io.ReadFull(src, probe[:]); n > 0 {
		return errcode.New(errcode.IntegrityFail)
	}
	return nil
}

// Close emits the two-zero-block end-of-archive marker. No further
// entries may be written afterward.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	trailer := make([]byte, BlockSize*2)
	return w.write(trailer)
}

func (w *Writer) write(p []byte) error {
	n, err := w.dst.Write(p)
	w.actualTotal += int64(n)
	if err != nil {
		return errcode.Wrap(errcode.WriteError, err)
	}
	if n != len(p) {
		return errcode.New(errcode.WriteError)
	}
	return nil
}
