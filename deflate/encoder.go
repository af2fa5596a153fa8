package deflate

import (
	"github.com/tobozo/go-targz/bitio"
	"github.com/tobozo/go-targz/lz77"
)

const endOfBlock = 256

// Encoder emits fixed-Huffman DEFLATE blocks (RFC 1951 §3.2.6) over a
// bitio.Sink, driven by lz77.Token values through its two entry points,
// literal(b) and copy(d,l), plus the stored-block and end-of-block
// operations a complete encoder also needs.
type Encoder struct {
	sink *bitio.Sink
}

// NewEncoder wraps sink.
func NewEncoder(sink *bitio.Sink) *Encoder {
	return &Encoder{sink: sink}
}

// BeginFixedBlock writes the 3-bit block header for a fixed-Huffman block
// (BTYPE=01), with BFINAL set when final is true.
func (e *Encoder) BeginFixedBlock(final bool) error {
	return e.header(final, 1)
}

func (e *Encoder) header(final bool, btype uint32) error {
	var bfinal uint32
	if final {
		bfinal = 1
	}
	return e.sink.PutBits(bfinal|(btype<<1), 3)
}

// Literal emits one literal byte via the fixed Huffman literal/length
// alphabet.
func (e *Encoder) Literal(b byte) error {
	code, n := fixedLitLenCode(int(b))
	return e.sink.PutBits(uint32(reverseBits(code, n)), n)
}

// Copy emits a (distance,length) back-reference: a length symbol plus
// extra bits, followed by a distance symbol plus extra bits.
func (e *Encoder) Copy(distance, length uint32) error {
	lsym, lextra, lbits := lengthSymbol(length)
	code, n := fixedLitLenCode(lsym)
	if err := e.sink.PutBits(uint32(reverseBits(code, n)), n); err != nil {
		return err
	}
	if lbits > 0 {
		if err := e.sink.PutBits(lextra, int(lbits)); err != nil {
			return err
		}
	}

	dsym, dextra, dbits := distSymbol(distance)
	dcode, dn := fixedDistCode(dsym)
	if err := e.sink.PutBits(uint32(reverseBits(dcode, dn)), dn); err != nil {
		return err
	}
	if dbits > 0 {
		if err := e.sink.PutBits(dextra, int(dbits)); err != nil {
			return err
		}
	}
	return nil
}

// EndBlock emits the end-of-block symbol (256) that terminates a
// fixed-Huffman block. Stored blocks carry LEN/NLEN instead and take no
// end-of-block symbol.
func (e *Encoder) EndBlock() error {
	code, n := fixedLitLenCode(endOfBlock)
	return e.sink.PutBits(uint32(reverseBits(code, n)), n)
}

// Tokens emits a full LZ77 token stream as one fixed-Huffman block,
// BFINAL set when final is true, terminated by the end-of-block symbol.
func (e *Encoder) Tokens(tokens []lz77.Token, final bool) error {
	if err := e.BeginFixedBlock(final); err != nil {
		return err
	}
	for _, tk := range tokens {
		var err error
		if tk.Literal {
			err = e.Literal(tk.Byte)
		} else {
			err = e.Copy(tk.Distance, tk.Length)
		}
		if err != nil {
			return err
		}
	}
	return e.EndBlock()
}

// StoredBlock emits data uncompressed (BTYPE=00), the shortcut RFC 1951
// names for empty or flush cases. The sink is byte-aligned before the
// 16-bit LEN/NLEN pair, per RFC 1951 §3.2.4.
func (e *Encoder) StoredBlock(data []byte, final bool) error {
	if err := e.header(final, 0); err != nil {
		return err
	}
	if err := e.sink.FlushByte(); err != nil {
		return err
	}

	length := uint16(len(data))
	nlength := ^length
	if err := e.sink.WriteRawBytes([]byte{byte(length), byte(length >> 8)}); err != nil {
		return err
	}
	if err := e.sink.WriteRawBytes([]byte{byte(nlength), byte(nlength >> 8)}); err != nil {
		return err
	}
	return e.sink.WriteRawBytes(data)
}

// Finish byte-aligns the sink and flushes any buffered output, required
// after the final block so the gzip trailer starts on a byte boundary
// (after the final block, the BitSink is byte-aligned).
func (e *Encoder) Finish() error {
	return e.sink.FlushByte()
}
