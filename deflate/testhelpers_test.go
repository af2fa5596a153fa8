package deflate

import (
	"bytes"

	"github.com/tobozo/go-targz/bitio"
)

// newBitSourceFromBits packs the low nbits bits of v through a real Sink
// (so they land in the same LSB-first byte order the wire format uses)
// and returns a Source primed to read them back, for exercising
// decodeSymbol against a single known code in isolation.
func newBitSourceFromBits(v uint16, nbits int) *bitio.Source {
	var buf bytes.Buffer
	sink := bitio.NewSink(&buf)
	sink.PutBits(uint32(v), nbits)
	sink.FlushByte()

	src := bitio.NewSource()
	src.Feed(buf.Bytes())
	return src
}
