package deflate

import (
	"io"

	"github.com/tobozo/go-targz/bitio"
	"github.com/tobozo/go-targz/lz77"
)

// Writer is the streaming DEFLATE writer used for "pack tar.gz in one
// pass" scenario drives: callers push bytes through Write as they become
// available (one ustar record at a time, typically), and the writer runs
// each Write straight through the LZ77 matcher and fixed-Huffman encoder
// as its own block, with no input buffering of its own. The matcher keeps
// every byte written so far as match history, so memory use grows with
// the total input.
type Writer struct {
	enc    *Encoder
	match  *lz77.Matcher
	closed bool
}

// NewWriter wraps dst. Compressed DEFLATE blocks are written to dst as
// Write is called and on Close.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{
		enc:   NewEncoder(bitio.NewSink(dst)),
		match: lz77.New(lz77.DefaultHashBits),
	}
}

// Write compresses p as one non-final fixed-Huffman block. Matches may
// reach back into bytes from a previous Write call, since the underlying
// lz77.Matcher retains cross-call history.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	tokens := w.match.Process(p, nil)
	if err := w.enc.Tokens(tokens, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close emits a final empty block (so the stream always ends with
// BFINAL=1, even for zero-byte input) and flushes the bit sink.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.enc.Tokens(nil, true); err != nil {
		return err
	}
	return w.enc.Finish()
}
