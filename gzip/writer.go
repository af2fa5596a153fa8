package gzip

import (
	"io"

	"github.com/tobozo/go-targz/checksum"
	"github.com/tobozo/go-targz/deflate"
)

// Writer wraps dst in a single RFC 1952 gzip member: a fixed 10-byte
// header (plus optional FNAME and FCOMMENT fields), a DEFLATE stream from this
// module's own deflate.Writer, and a CRC32+ISIZE trailer.
type Writer struct {
	w           io.Writer
	def         *deflate.Writer
	crc         checksum.CRC32
	size        uint32
	wroteHeader bool
	closed      bool
	header      Header
}

// NewWriter returns a Writer with no name or comment set.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, crc: checksum.NewCRC32()}
}

// NewWriterHeader returns a Writer that emits the given Header's Name in
// the FNAME field and its Comment in the FCOMMENT field, each only when
// non-empty.
func NewWriterHeader(w io.Writer, h Header) *Writer {
	return &Writer{w: w, header: h, crc: checksum.NewCRC32()}
}

func (w *Writer) writeHeader() error {
	var flg byte
	if w.header.Name != "" {
		flg |= flagName
	}
	if w.header.Comment != "" {
		flg |= flagComment
	}

	buf := [10]byte{id1, id2, methodDeflate, flg, 0, 0, 0, 0, 0, 0xFF}
	buf[4] = byte(w.header.ModTime)
	buf[5] = byte(w.header.ModTime >> 8)
	buf[6] = byte(w.header.ModTime >> 16)
	buf[7] = byte(w.header.ModTime >> 24)

	if _, err := w.w.Write(buf[:]); err != nil {
		return err
	}
	if w.header.Name != "" {
		if err := writeLatin1String(w.w, w.header.Name); err != nil {
			return err
		}
	}
	if w.header.Comment != "" {
		if err := writeLatin1String(w.w, w.header.Comment); err != nil {
			return err
		}
	}

	w.def = deflate.NewWriter(w.w)
	w.wroteHeader = true
	return nil
}

func writeLatin1String(w io.Writer, s string) error {
	b := append([]byte(s), 0)
	_, err := w.Write(b)
	return err
}

// Write compresses p into the member's DEFLATE stream, updating the
// running CRC32 and size trailer fields.
func (w *Writer) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		if err := w.writeHeader(); err != nil {
			return 0, err
		}
	}
	n, err := w.def.Write(p)
	if err != nil {
		return n, err
	}
	w.crc = w.crc.Update(p[:n])
	w.size += uint32(n)
	return n, nil
}

// Close finishes the DEFLATE stream and appends the CRC32+ISIZE trailer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.wroteHeader {
		if err := w.writeHeader(); err != nil {
			return err
		}
	}
	if err := w.def.Close(); err != nil {
		return err
	}

	var trailer [8]byte
	sum := w.crc.Sum32()
	trailer[0], trailer[1], trailer[2], trailer[3] = byte(sum), byte(sum>>8), byte(sum>>16), byte(sum>>24)
	trailer[4], trailer[5], trailer[6], trailer[7] = byte(w.size), byte(w.size>>8), byte(w.size>>16), byte(w.size>>24)
	_, err := w.w.Write(trailer[:])
	return err
}
