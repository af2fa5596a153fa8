package ustar

import (
	"github.com/tobozo/go-targz/errcode"
	golog "github.com/tobozo/go-targz/log"
)

// HeaderFunc is invoked once per accepted entry, before any of its data
// blocks. Returning an error aborts the read with TarHeaderCbFail.
type HeaderFunc func(h Header) error

// DataFunc is invoked once per data block of an accepted Regular entry.
// block is trimmed to the entry's real remaining length on the final
// block (the last call passes a length of size mod 512, or
// 512 when size is a multiple). Returning an error aborts the read
// with TarDataCbFail.
type DataFunc func(h Header, block []byte) error

// EndFunc is invoked once per accepted entry after its last data block
// (or immediately after the header, for entries with no data).
// Returning an error aborts the read with TarFooterCbFail.
type EndFunc func(h Header) error

// ExcludeFunc, when set, is evaluated before Include; a true result
// means the entry's data is consumed from the stream but never handed
// to the callbacks.
type ExcludeFunc func(h Header) bool

// IncludeFunc, when set, must return true for an entry's callbacks to
// fire.
type IncludeFunc func(h Header) bool

type readState int

const (
	rsHeader readState = iota
	rsData
	rsDone
)

// Reader is a push-driven ustar decoder: Feed hands it whatever bytes
// the orchestrator's sector buffer just received, and it drains every
// complete 512-byte record currently available, dispatching callbacks
// synchronously. This mirrors the sector-buffer invariant used elsewhere —
// the gzip/deflate stage writes one sector, the tar reader consumes
// exactly sector_len/512 records from it — without the reader ever
// needing to know where a sector boundary falls relative to a tar record.
type Reader struct {
	OnHeader HeaderFunc
	OnData   DataFunc
	OnEnd    EndFunc
	Exclude  ExcludeFunc
	Include  IncludeFunc
	Logger   *golog.Logger

	// OnSkip, when set, is invoked once per entry that shouldAccept
	// rejected — non-regular/non-directory typeflags, or entries denied
	// by Exclude/Include — so a caller can keep a running skip count.
	// Its data records are still consumed to keep the stream aligned;
	// OnSkip cannot abort the read.
	OnSkip func(h Header)

	buf []byte

	state        readState
	sawZeroBlock bool

	cur          Header
	accepted     bool
	blocksRemain int
	bytesRemain  int64
}

// NewReader returns a Reader with no callbacks configured; set OnHeader/
// OnData/OnEnd before feeding data, or omit what isn't needed (an
// unwanted data stream can simply be left with OnData == nil, in which
// case blocks are still consumed to keep the stream aligned, just never
// dispatched).
func NewReader() *Reader {
	return &Reader{}
}

// Done reports whether the two-zero-block end marker has been seen.
func (r *Reader) Done() bool {
	return r.state == rsDone
}

// Feed appends newly available bytes and drains every complete record
// currently buffered, dispatching callbacks as entries and their data
// blocks complete. It returns as soon as fewer than 512 bytes remain
// buffered or the end marker is reached.
func (r *Reader) Feed(p []byte) error {
	r.buf = append(r.buf, p...)
	for {
		if r.state == rsDone {
			return nil
		}
		if len(r.buf) < BlockSize {
			return nil
		}
		block := r.buf[:BlockSize]
		if err := r.step(block); err != nil {
			return err
		}
		r.buf = r.buf[BlockSize:]
	}
}

func (r *Reader) step(block []byte) error {
	switch r.state {
	case rsHeader:
		return r.stepHeader(block)
	case rsData:
		return r.stepData(block)
	}
	return nil
}

func (r *Reader) stepHeader(block []byte) error {
	if isZeroBlock(block) {
		if r.sawZeroBlock {
			r.state = rsDone
			return nil
		}
		r.sawZeroBlock = true
		return nil
	}
	r.sawZeroBlock = false

	h, err := unmarshalHeader(block)
	if err != nil {
		return err
	}
	r.cur = h
	r.bytesRemain = h.Size
	r.blocksRemain = numBlocks(h.Size)

	r.accepted = r.shouldAccept(h)
	if !r.accepted {
		if r.Logger != nil {
			r.Logger.Debugf("ustar: skipping entry %q (typeflag %q)", h.Name, string(h.Typeflag))
		}
		if r.OnSkip != nil {
			r.OnSkip(h)
		}
	} else if r.OnHeader != nil {
		if err := r.OnHeader(h); err != nil {
			return errcode.Wrap(errcode.TarHeaderCbFail, err)
		}
	}

	if r.blocksRemain == 0 {
		return r.finishEntry()
	}
	r.state = rsData
	return nil
}

func (r *Reader) stepData(block []byte) error {
	n := int64(BlockSize)
	if r.bytesRemain < n {
		n = r.bytesRemain
	}
	if r.accepted && r.cur.IsRegular() && r.OnData != nil {
		if err := r.OnData(r.cur, block[:n]); err != nil {
			return errcode.Wrap(errcode.TarDataCbFail, err)
		}
	}
	r.bytesRemain -= n
	r.blocksRemain--
	if r.blocksRemain <= 0 {
		return r.finishEntry()
	}
	return nil
}

func (r *Reader) finishEntry() error {
	r.state = rsHeader
	if r.accepted && r.OnEnd != nil {
		if err := r.OnEnd(r.cur); err != nil {
			return errcode.Wrap(errcode.TarFooterCbFail, err)
		}
	}
	return nil
}

func (r *Reader) shouldAccept(h Header) bool {
	if !h.IsRegular() && !h.IsDir() {
		return false
	}
	if r.Exclude != nil && r.Exclude(h) {
		return false
	}
	if r.Include != nil && !r.Include(h) {
		return false
	}
	return true
}

func numBlocks(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + BlockSize - 1) / BlockSize)
}
