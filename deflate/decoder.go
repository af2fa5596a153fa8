package deflate

import (
	"github.com/tobozo/go-targz/bitio"
	"github.com/tobozo/go-targz/errcode"
)

// Mode selects how the decoder resolves back-reference distances: against
// its own ring window, or against the caller's sink (the two
// output modes for memory-constrained hosts).
type Mode int

const (
	// ModeWindowed keeps a 32 KiB ring buffer of emitted bytes, the usual
	// INFLATE dictionary.
	ModeWindowed Mode = iota
	// ModeReflective keeps no window of its own; back-references that
	// reach behind the current output chunk are resolved by reading
	// already-written bytes back out of the destination sink.
	ModeReflective
)

const windowSize = 32768

// ReadEmittedFunc reads back the single byte `distance` positions from the
// end of the output handed to the caller through Decode's dst slice so
// far (distance 1 is the most recently handed byte).
// Only used in ModeReflective, where the decoder has no window of its own
// and must ask the sink for history it already wrote.
type ReadEmittedFunc func(distance uint32) (byte, error)

type decState int

const (
	stBlockHeader decState = iota
	stStoredLen
	stStoredData
	stDynHeader
	stHuffData
	stLenExtra
	stDistSym
	stDistExtra
	stCopy
	stDone
)

// dynHeaderState tracks progress parsing a dynamic block's Huffman tree
// description (RFC 1951 §3.2.7) across possibly-interrupted Decode calls.
type dynHeaderState struct {
	hlit, hdist, hclen int
	sub                int // sub-step within phase 0 (hlit/hdist/hclen reads)

	clLengths [19]uint8
	clTree    *huffTree

	lengths []uint8
	idx     int
	phase   int // 0: header counts, 1: code-length alphabet, 2: lit/dist lengths
	prevLen uint8
	pending int // pending repeat symbol (16/17/18) awaiting its extra bits, -1 if none
}

// Decoder is a resumable RFC 1951 INFLATE state machine: Feed supplies
// compressed input as it arrives, Decode drains decompressed output into a
// caller-bounded buffer, and both may be called repeatedly until Decode
// reports done. This pull-driven shape — a single step function pumped by
// the caller, writing through a bounded destination chunk — is grounded
// directly on original_source/src/uzlib's uzlib_uncompress/TINF_PUT.
type Decoder struct {
	mode        Mode
	readEmitted ReadEmittedFunc

	window []byte // nil in ModeReflective
	winPos int

	src *bitio.Source

	state decState
	final bool

	litTree  *huffTree
	distTree *huffTree

	storedRemain int

	litSym        int // pending literal/length symbol awaiting extra bits, -1 if none
	distSym       int // pending distance symbol awaiting extra bits, -1 if none
	pendingLength uint32

	copyDist   uint32
	copyRemain uint32

	dyn dynHeaderState
}

// NewDecoder returns a Decoder in ModeWindowed.
func NewDecoder() *Decoder {
	return &Decoder{
		mode:    ModeWindowed,
		window:  make([]byte, windowSize),
		src:     bitio.NewSource(),
		litSym:  -1,
		distSym: -1,
	}
}

// NewReflectiveDecoder returns a Decoder in ModeReflective, resolving
// distances that reach past the current output chunk via readEmitted
// instead of an internal window.
func NewReflectiveDecoder(readEmitted ReadEmittedFunc) *Decoder {
	return &Decoder{
		mode:        ModeReflective,
		readEmitted: readEmitted,
		src:         bitio.NewSource(),
		litSym:      -1,
		distSym:     -1,
	}
}

// Feed appends newly available compressed bytes.
func (d *Decoder) Feed(p []byte) {
	d.src.Feed(p)
}

// Done reports whether the final block has been fully decoded.
func (d *Decoder) Done() bool {
	return d.state == stDone
}

// Remaining returns the fed-but-unconsumed compressed bytes, byte-aligned
// (any leftover bits in the final partial byte are padding and are
// dropped). Once Done reports true, these are exactly whatever the
// caller appended to the stream after the final DEFLATE block — a gzip
// trailer, for instance.
func (d *Decoder) Remaining() []byte {
	return d.src.Remaining()
}

// Decode writes decompressed bytes into dst, stopping when dst is full,
// input is exhausted, or the stream ends. n is always dst's read-count so
// far; done is true once the final block's data has been fully emitted. A
// nil error with done false and n possibly 0 means: Feed more input and
// call Decode again.
func (d *Decoder) Decode(dst []byte) (n int, done bool, err error) {
	for n < len(dst) {
		switch d.state {

		case stDone:
			return n, true, nil

		case stBlockHeader:
			snap := d.src.Snapshot()
			bfinal, err := d.src.GetBits(1)
			if err != nil {
				d.src.Restore(snap)
				return n, false, nil
			}
			btype, err := d.src.GetBits(2)
			if err != nil {
				d.src.Restore(snap)
				return n, false, nil
			}
			d.final = bfinal == 1

			switch btype {
			case 0:
				d.src.AlignByte()
				d.state = stStoredLen
			case 1:
				d.litTree, _ = buildTree(fixedLitLenLengths())
				d.distTree, _ = buildTree(fixedDistLengths())
				d.litSym, d.distSym = -1, -1
				d.state = stHuffData
			case 2:
				d.dyn = dynHeaderState{pending: -1}
				d.state = stDynHeader
			default:
				return n, false, errcode.New(errcode.DataError)
			}

		case stStoredLen:
			if d.src.Pending() < 4 {
				return n, false, nil
			}
			lenLo, _ := d.src.ReadRawByte()
			lenHi, _ := d.src.ReadRawByte()
			nlenLo, _ := d.src.ReadRawByte()
			nlenHi, _ := d.src.ReadRawByte()
			length := uint16(lenLo) | uint16(lenHi)<<8
			nlength := uint16(nlenLo) | uint16(nlenHi)<<8
			if length != ^nlength {
				return n, false, errcode.New(errcode.DataError)
			}
			d.storedRemain = int(length)
			d.state = stStoredData

		case stStoredData:
			for d.storedRemain > 0 && n < len(dst) {
				b, err := d.src.ReadRawByte()
				if err != nil {
					return n, false, nil
				}
				d.emit(dst, n, b)
				n++
				d.storedRemain--
			}
			if d.storedRemain == 0 {
				d.state = d.nextBlockState()
			}

		case stDynHeader:
			if nerr := d.readDynHeader(); nerr != nil {
				if bitio.NeedInput(nerr) {
					return n, false, nil
				}
				return n, false, nerr
			}
			d.litSym, d.distSym = -1, -1
			d.state = stHuffData

		case stHuffData:
			if d.litSym < 0 {
				sym, err := decodeSymbol(d.src, d.litTree)
				if err != nil {
					if bitio.NeedInput(err) {
						return n, false, nil
					}
					return n, false, err
				}
				d.litSym = sym
			}

			switch {
			case d.litSym < 256:
				d.emit(dst, n, byte(d.litSym))
				n++
				d.litSym = -1
			case d.litSym == endOfBlock:
				d.litSym = -1
				d.state = d.nextBlockState()
			default:
				d.state = stLenExtra
			}

		case stLenExtra:
			length, err := d.readLengthExtra(d.litSym)
			if err != nil {
				if bitio.NeedInput(err) {
					return n, false, nil
				}
				return n, false, err
			}
			d.pendingLength = length
			d.state = stDistSym

		case stDistSym:
			if d.distSym < 0 {
				sym, err := decodeSymbol(d.src, d.distTree)
				if err != nil {
					if bitio.NeedInput(err) {
						return n, false, nil
					}
					return n, false, err
				}
				d.distSym = sym
			}
			d.state = stDistExtra

		case stDistExtra:
			distance, err := d.readDistExtra(d.distSym)
			if err != nil {
				if bitio.NeedInput(err) {
					return n, false, nil
				}
				return n, false, err
			}
			d.copyDist = distance
			d.copyRemain = d.pendingLength
			d.litSym = -1
			d.distSym = -1
			d.state = stCopy

		case stCopy:
			for d.copyRemain > 0 && n < len(dst) {
				b, lerr := d.lookback(d.copyDist, dst, n)
				if lerr != nil {
					return n, false, lerr
				}
				d.emit(dst, n, b)
				n++
				d.copyRemain--
			}
			if d.copyRemain == 0 {
				d.state = stHuffData
			}
		}
	}
	return n, d.state == stDone, nil
}

func (d *Decoder) nextBlockState() decState {
	if d.final {
		return stDone
	}
	return stBlockHeader
}

func (d *Decoder) readLengthExtra(sym int) (uint32, error) {
	idx := sym - 257
	if idx < 0 || idx >= len(lengthTable) {
		return 0, errcode.New(errcode.DataError)
	}
	entry := lengthTable[idx]
	if entry.extra == 0 {
		return entry.base, nil
	}
	extra, err := d.src.GetBits(int(entry.extra))
	if err != nil {
		return 0, err
	}
	return entry.base + extra, nil
}

func (d *Decoder) readDistExtra(sym int) (uint32, error) {
	if sym < 0 || sym >= len(distTable) {
		return 0, errcode.New(errcode.DataError)
	}
	entry := distTable[sym]
	if entry.extra == 0 {
		return entry.base, nil
	}
	extra, err := d.src.GetBits(int(entry.extra))
	if err != nil {
		return 0, err
	}
	return entry.base + extra, nil
}

// emit writes b to dst[n] and, in ModeWindowed, also records it in the
// ring window so later back-references can find it regardless of which
// Decode call they land in.
func (d *Decoder) emit(dst []byte, n int, b byte) {
	dst[n] = b
	if d.mode == ModeWindowed {
		d.window[d.winPos] = b
		d.winPos++
		if d.winPos == windowSize {
			d.winPos = 0
		}
	}
}

// lookback resolves a back-reference distance. ModeWindowed always has
// the full history in its ring buffer. ModeReflective checks the segment
// already written during this Decode call first, the cheap case, and
// falls back to asking the sink for bytes it emitted in a previous call.
func (d *Decoder) lookback(distance uint32, dst []byte, n int) (byte, error) {
	if d.mode == ModeWindowed {
		idx := d.winPos - int(distance)
		for idx < 0 {
			idx += windowSize
		}
		return d.window[idx], nil
	}

	if int(distance) <= n {
		return dst[n-int(distance)], nil
	}
	if d.readEmitted == nil {
		return 0, errcode.New(errcode.NeedsDictionary)
	}
	return d.readEmitted(distance - uint32(n))
}
