package gzip

import (
	"github.com/tobozo/go-targz/checksum"
	"github.com/tobozo/go-targz/deflate"
	"github.com/tobozo/go-targz/errcode"
)

type readState int

const (
	rsHeaderFixed readState = iota
	rsHeaderExtra
	rsHeaderName
	rsHeaderComment
	rsHeaderCRC
	rsBody
	rsTrailer
	rsDone
)

// Reader is a sans-I/O RFC 1952 member reader built the same pull-driven
// way deflate.Decoder is: Feed supplies compressed bytes as they arrive,
// Read drains decompressed output into a caller-bounded buffer. It
// validates the magic bytes, skips any optional header fields, and
// checks the CRC32+ISIZE trailer against what was actually decoded —
// the integrity check (ChecksumError/IntegrityFail)
// require.
//
// Everything before the DEFLATE stream (the header) and everything after
// it (the trailer) is plain byte framing, so it is parsed directly off a
// small buffer here rather than through deflate's bit-oriented Source;
// only the body bytes are ever handed to the embedded deflate.Decoder.
type Reader struct {
	dec *deflate.Decoder

	raw []byte // buffered bytes not yet consumed by header/trailer parsing
	pos int

	state readState
	flags byte

	Header Header

	crc  checksum.CRC32
	size uint32

	extraRemain int
}

// NewReader returns a Reader in windowed INFLATE mode.
func NewReader() *Reader {
	return &Reader{
		dec: deflate.NewDecoder(),
		crc: checksum.NewCRC32(),
	}
}

// NewReflectiveReader returns a Reader whose INFLATE stage resolves
// back-references through readEmitted instead of an internal window,
// for memory-constrained hosts decoding straight to a non-seekable sink
// (deflate.ModeReflective).
func NewReflectiveReader(readEmitted deflate.ReadEmittedFunc) *Reader {
	return &Reader{
		dec: deflate.NewReflectiveDecoder(readEmitted),
		crc: checksum.NewCRC32(),
	}
}

// Feed appends newly available compressed bytes. Bytes are routed to the
// DEFLATE decoder only once the gzip header has been fully consumed.
func (r *Reader) Feed(p []byte) {
	if r.state == rsBody {
		r.dec.Feed(p)
		return
	}
	if r.pos > 0 {
		r.raw = append(r.raw[:0], r.raw[r.pos:]...)
		r.pos = 0
	}
	r.raw = append(r.raw, p...)
}

// Done reports whether the trailer has been read and verified.
func (r *Reader) Done() bool {
	return r.state == rsDone
}

func (r *Reader) pending() int { return len(r.raw) - r.pos }

func (r *Reader) readByte() (byte, bool) {
	if r.pos >= len(r.raw) {
		return 0, false
	}
	b := r.raw[r.pos]
	r.pos++
	return b, true
}

func (r *Reader) peekAt(i int) (byte, bool) {
	if r.pos+i >= len(r.raw) {
		return 0, false
	}
	return r.raw[r.pos+i], true
}

// Read decompresses into dst, pausing with done false and a nil error
// whenever more input must be Fed (n then counts the bytes decoded
// before the pause, possibly 0). Decoded bytes are folded into the running CRC32 and
// size counters so the trailer check (reached once Decode reports its
// final block consumed) can run.
func (r *Reader) Read(dst []byte) (n int, done bool, err error) {
	for {
		switch r.state {

		case rsDone:
			return n, true, nil

		case rsHeaderFixed:
			if r.pending() < 10 {
				return n, false, nil
			}
			hdr := make([]byte, 10)
			for i := range hdr {
				hdr[i], _ = r.readByte()
			}
			if err := validateMagic(hdr); err != nil {
				return n, false, err
			}
			r.flags = hdr[3]
			r.Header.ModTime = uint32(hdr[4]) | uint32(hdr[5])<<8 | uint32(hdr[6])<<16 | uint32(hdr[7])<<24
			r.state = rsHeaderExtra

		case rsHeaderExtra:
			if r.flags&flagExtra == 0 {
				r.state = rsHeaderName
				continue
			}
			if r.extraRemain == 0 {
				if r.pending() < 2 {
					return n, false, nil
				}
				lo, _ := r.readByte()
				hi, _ := r.readByte()
				r.extraRemain = int(lo) | int(hi)<<8
				if r.extraRemain == 0 {
					r.state = rsHeaderName
					continue
				}
			}
			for r.extraRemain > 0 {
				if _, ok := r.readByte(); !ok {
					return n, false, nil
				}
				r.extraRemain--
			}
			r.state = rsHeaderName

		case rsHeaderName:
			if r.flags&flagName == 0 {
				r.state = rsHeaderComment
				continue
			}
			s, ok := r.readCString()
			if !ok {
				return n, false, nil
			}
			r.Header.Name = s
			r.state = rsHeaderComment

		case rsHeaderComment:
			if r.flags&flagComment == 0 {
				r.state = rsHeaderCRC
				continue
			}
			s, ok := r.readCString()
			if !ok {
				return n, false, nil
			}
			r.Header.Comment = s
			r.state = rsHeaderCRC

		case rsHeaderCRC:
			if r.flags&flagHdrCRC == 0 {
				r.enterBody()
				continue
			}
			if r.pending() < 2 {
				return n, false, nil
			}
			_, _ = r.readByte()
			_, _ = r.readByte()
			r.enterBody()

		case rsBody:
			if n >= len(dst) {
				return n, false, nil
			}
			m, bodyDone, derr := r.dec.Decode(dst[n:])
			if derr != nil {
				return n, false, derr
			}
			if m > 0 {
				r.crc = r.crc.Update(dst[n : n+m])
				r.size += uint32(m)
				n += m
			}
			if bodyDone {
				r.raw = append([]byte{}, r.dec.Remaining()...)
				r.pos = 0
				r.state = rsTrailer
				continue
			}
			if m == 0 {
				return n, false, nil
			}

		case rsTrailer:
			if r.pending() < 8 {
				return n, false, nil
			}
			var b [8]byte
			for i := range b {
				b[i], _ = r.readByte()
			}
			wantCRC := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
			wantSize := uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24

			if wantCRC != r.crc.Sum32() {
				return n, false, errcode.New(errcode.ChecksumError)
			}
			if wantSize != r.size {
				return n, false, errcode.New(errcode.IntegrityFail)
			}
			r.state = rsDone
			return n, true, nil
		}
	}
}

// enterBody hands whatever header bytes were over-read (the start of the
// DEFLATE stream, possibly already including it all) to the decoder, and
// switches Feed to route straight to it from here on.
func (r *Reader) enterBody() {
	r.state = rsBody
	if r.pending() > 0 {
		r.dec.Feed(r.raw[r.pos:])
	}
	r.raw = nil
	r.pos = 0
}

func (r *Reader) readCString() (string, bool) {
	for i := 0; ; i++ {
		b, ok := r.peekAt(i)
		if !ok {
			return "", false
		}
		if b == 0 {
			buf := make([]byte, i)
			for j := 0; j < i; j++ {
				buf[j], _ = r.readByte()
			}
			_, _ = r.readByte() // consume the NUL
			return string(buf), true
		}
	}
}
