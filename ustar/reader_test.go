package ustar

import (
	"bytes"
	"testing"
)

func buildSampleArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteEntry(Entry{ArchivePath: "./d/", Kind: KindDir}); err != nil {
		t.Fatal(err)
	}
	payload := []byte("hello ustar")
	if err := w.WriteEntry(Entry{
		ArchivePath: "./d/f.txt",
		Kind:        KindFile,
		Size:        int64(len(payload)),
		Source:      bytes.NewReader(payload),
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReaderDispatchesHeaderDataEndInOrder(t *testing.T) {
	archive := buildSampleArchive(t)

	var events []string
	var gotData []byte

	r := NewReader()
	r.OnHeader = func(h Header) error {
		events = append(events, "header:"+h.Name)
		return nil
	}
	r.OnData = func(h Header, block []byte) error {
		gotData = append(gotData, block...)
		return nil
	}
	r.OnEnd = func(h Header) error {
		events = append(events, "end:"+h.Name)
		return nil
	}

	if err := r.Feed(archive); err != nil {
		t.Fatal(err)
	}
	if !r.Done() {
		t.Fatal("expected reader to reach the end-of-archive marker")
	}

	want := []string{"header:./d/", "end:./d/", "header:./d/f.txt", "end:./d/f.txt"}
	if len(events) != len(want) {
		t.Fatalf("got events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("got events %v, want %v", events, want)
		}
	}
	if string(gotData) != "hello ustar" {
		t.Fatalf("got data %q, want %q", gotData, "hello ustar")
	}
}

func TestReaderHandlesByteAtATimeFeed(t *testing.T) {
	archive := buildSampleArchive(t)

	var names []string
	r := NewReader()
	r.OnHeader = func(h Header) error {
		names = append(names, h.Name)
		return nil
	}

	for i := 0; i < len(archive); i++ {
		if err := r.Feed(archive[i : i+1]); err != nil {
			t.Fatal(err)
		}
	}
	if !r.Done() {
		t.Fatal("expected reader to reach the end-of-archive marker")
	}
	if len(names) != 2 || names[0] != "./d/" || names[1] != "./d/f.txt" {
		t.Fatalf("got names %v", names)
	}
}

func TestReaderExcludeSkipsEntryButConsumesItsData(t *testing.T) {
	archive := buildSampleArchive(t)

	var seen []string
	r := NewReader()
	r.Exclude = func(h Header) bool { return h.IsDir() }
	r.OnHeader = func(h Header) error {
		seen = append(seen, h.Name)
		return nil
	}

	if err := r.Feed(archive); err != nil {
		t.Fatal(err)
	}
	if !r.Done() {
		t.Fatal("expected reader to reach the end-of-archive marker")
	}
	if len(seen) != 1 || seen[0] != "./d/f.txt" {
		t.Fatalf("got seen %v, want only the file entry", seen)
	}
}

func TestReaderEmptyArchiveIsValid(t *testing.T) {
	trailer := make([]byte, BlockSize*2)
	r := NewReader()
	if err := r.Feed(trailer); err != nil {
		t.Fatal(err)
	}
	if !r.Done() {
		t.Fatal("expected a bare two-zero-block stream to be a valid empty archive")
	}
}

func TestReaderFileSizeMultipleOf512HasNoExtraPadding(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	payload := bytes.Repeat([]byte{0x42}, BlockSize)
	if err := w.WriteEntry(Entry{
		ArchivePath: "exact",
		Kind:        KindFile,
		Size:        int64(len(payload)),
		Source:      bytes.NewReader(payload),
	}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var blockLens []int
	r := NewReader()
	r.OnData = func(h Header, block []byte) error {
		blockLens = append(blockLens, len(block))
		return nil
	}
	if err := r.Feed(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if len(blockLens) != 1 || blockLens[0] != BlockSize {
		t.Fatalf("got block lengths %v, want a single full block", blockLens)
	}
}
