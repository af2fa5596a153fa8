package deflate_test

import (
	"bytes"
	"compress/flate"
	"io"
	"testing"

	"github.com/tobozo/go-targz/deflate"
)

// stdlib compress/flate is used here strictly as a cross-validation
// oracle, never by non-test code, to confirm the hand-rolled encoder and
// decoder agree with a known-correct RFC 1951 implementation.

func TestWriterOutputDecodesWithStdlib(t *testing.T) {
	input := []byte("the quick brown fox jumps over the lazy dog. the quick brown fox jumps again.")

	var compressed bytes.Buffer
	w := deflate.NewWriter(&compressed)
	if _, err := w.Write(input); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	fr := flate.NewReader(&compressed)
	defer fr.Close()
	got, err := io.ReadAll(fr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, input) {
		t.Fatalf("got %q, want %q", got, input)
	}
}

func TestDecoderDecodesStdlibOutput(t *testing.T) {
	input := []byte("the quick brown fox jumps over the lazy dog. the quick brown fox jumps again and again.")

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(input); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	dec := deflate.NewDecoder()
	dec.Feed(compressed.Bytes())

	var out []byte
	buf := make([]byte, 16) // small chunks to exercise bounded Decode
	for {
		n, done, err := dec.Decode(buf)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, buf[:n]...)
		if done {
			break
		}
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("got %q, want %q", out, input)
	}
}

func TestDecoderHandlesByteAtATimeFeed(t *testing.T) {
	input := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	var compressed bytes.Buffer
	w := deflate.NewWriter(&compressed)
	if _, err := w.Write(input); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	dec := deflate.NewDecoder()
	src := compressed.Bytes()

	var out []byte
	buf := make([]byte, 4)
	fed := 0
	for {
		n, done, err := dec.Decode(buf)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, buf[:n]...)
		if done {
			break
		}
		if n == 0 {
			if fed >= len(src) {
				t.Fatal("decoder stalled with no more input to feed")
			}
			dec.Feed(src[fed : fed+1])
			fed++
		}
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("got %q, want %q", out, input)
	}
}

func TestDecoderReflectiveModeMatchesWindowedOutput(t *testing.T) {
	input := []byte("one two three two one three two one. one two three two one three two one.")

	var compressed bytes.Buffer
	w := deflate.NewWriter(&compressed)
	if _, err := w.Write(input); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var sink []byte
	readEmitted := func(distance uint32) (byte, error) {
		return sink[len(sink)-int(distance)], nil
	}

	dec := deflate.NewReflectiveDecoder(readEmitted)
	dec.Feed(compressed.Bytes())

	buf := make([]byte, 8)
	for {
		n, done, err := dec.Decode(buf)
		if err != nil {
			t.Fatal(err)
		}
		sink = append(sink, buf[:n]...)
		if done {
			break
		}
	}
	if !bytes.Equal(sink, input) {
		t.Fatalf("got %q, want %q", sink, input)
	}
}

func TestDecoderRejectsReflectiveWithoutCallback(t *testing.T) {
	// A repeat at distance 10, decoded through a 4-byte destination buffer,
	// guarantees the back-reference cannot be satisfied from the current
	// output segment alone and must reach for the (absent) callback.
	input := append([]byte("abcdefghij"), []byte("abcdefghij")...)

	var compressed bytes.Buffer
	w := deflate.NewWriter(&compressed)
	if _, err := w.Write(input); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	dec := deflate.NewReflectiveDecoder(nil)
	dec.Feed(compressed.Bytes())

	buf := make([]byte, 4)
	for i := 0; i < 1000; i++ {
		_, done, err := dec.Decode(buf)
		if err != nil {
			return // expected: a back-reference eventually needs the callback
		}
		if done {
			t.Fatal("expected NeedsDictionary before decode completed for an input with repeats and no callback")
		}
	}
	t.Fatal("decoder never surfaced the missing-callback error")
}
