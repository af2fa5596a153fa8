package deflate

import (
	"github.com/tobozo/go-targz/bitio"
	"github.com/tobozo/go-targz/errcode"
)

const maxHuffBits = 15

// huffTree is a canonical Huffman decode table: a count of codes per bit
// length plus a symbol list ordered the way those codes enumerate, the
// shape original_source/src/uzlib's TINF_TREE (table[16] counts, trans[288]
// symbols) uses for the same job.
type huffTree struct {
	counts  [maxHuffBits + 1]uint16
	symbols []uint16
}

// buildTree turns a per-symbol code-length array into a decode table,
// following RFC 1951 §3.2.2's canonical-code construction: codes of the
// same length are assigned consecutively in symbol order.
func buildTree(lengths []uint8) (*huffTree, error) {
	t := &huffTree{}
	for _, l := range lengths {
		if l > maxHuffBits {
			return nil, errcode.New(errcode.DataError)
		}
		t.counts[l]++
	}
	t.counts[0] = 0

	var offsets [maxHuffBits + 2]uint16
	for length := 1; length <= maxHuffBits; length++ {
		offsets[length+1] = offsets[length] + t.counts[length]
	}

	t.symbols = make([]uint16, offsets[maxHuffBits+1])
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		t.symbols[offsets[l]] = uint16(sym)
		offsets[l]++
	}
	return t, nil
}

// decodeSymbol pulls one bit at a time from br and walks the canonical
// code space to find the symbol it names, the same incremental
// code-versus-count comparison TINF_TREE's decoder performs.
func decodeSymbol(br *bitio.Source, t *huffTree) (int, error) {
	snap := br.Snapshot()
	code, first, index := 0, 0, 0

	for length := 1; length <= maxHuffBits; length++ {
		bit, err := br.GetBit()
		if err != nil {
			br.Restore(snap)
			return 0, err
		}
		code |= int(bit)

		count := int(t.counts[length])
		if code-first < count {
			return int(t.symbols[index+(code-first)]), nil
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	br.Restore(snap)
	return 0, errcode.New(errcode.DataError)
}

// fixedLitLenLengths and fixedDistLengths are the RFC 1951 §3.2.6 code
// length assignments, used to build the fixed-block decode trees.
func fixedLitLenLengths() []uint8 {
	lengths := make([]uint8, 288)
	for i := 0; i <= 143; i++ {
		lengths[i] = 8
	}
	for i := 144; i <= 255; i++ {
		lengths[i] = 9
	}
	for i := 256; i <= 279; i++ {
		lengths[i] = 7
	}
	for i := 280; i <= 287; i++ {
		lengths[i] = 8
	}
	return lengths
}

func fixedDistLengths() []uint8 {
	lengths := make([]uint8, 30)
	for i := range lengths {
		lengths[i] = 5
	}
	return lengths
}

// codeLengthOrder is the order in which a dynamic block transmits the
// 3-bit lengths of the code-length alphabet itself (RFC 1951 §3.2.7).
var codeLengthOrder = [19]int{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}
