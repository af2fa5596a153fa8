package pipeline_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/tobozo/go-targz/gzip"
	"github.com/tobozo/go-targz/pipeline"
	"github.com/tobozo/go-targz/storage"
	"github.com/tobozo/go-targz/ustar"
)

func buildTarGz(t *testing.T, entries []pipeline.PackEntry) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := ustar.NewWriter(&tarBuf)
	for _, e := range entries {
		if err := tw.WriteEntry(ustar.Entry{
			ArchivePath: e.ArchivePath,
			Kind:        e.Kind,
			Size:        e.Size,
			Mtime:       e.Mtime,
			Source:      e.Source,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write(tarBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return gzBuf.Bytes()
}

func TestUnpackTarGzWithDictExtractsFilesAndDirs(t *testing.T) {
	member := buildTarGz(t, []pipeline.PackEntry{
		{ArchivePath: "dir", Kind: ustar.KindDir},
		{ArchivePath: "dir/hello.txt", Kind: ustar.KindFile, Size: 13, Source: bytes.NewReader([]byte("hello, world!"))},
	})

	adapter := storage.NewMemoryAdapter()
	p := pipeline.New(pipeline.WithSectorSize(512))

	var reported []string
	err := p.UnpackTarGzWithDict(bytes.NewReader(member), adapter, "root", func(name string, size, total int64) {
		reported = append(reported, name)
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.State() != pipeline.StateDone {
		t.Fatalf("got state %v, want Done", p.State())
	}

	h, err := adapter.Open("root/dir/hello.txt", storage.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	got, _ := io.ReadAll(h)
	if string(got) != "hello, world!" {
		t.Fatalf("got %q", got)
	}
	if !adapter.Exists("root/dir") {
		t.Fatal("expected the directory entry to have been created")
	}
	if p.Result().EntriesWritten != 2 {
		t.Fatalf("got EntriesWritten %d, want 2", p.Result().EntriesWritten)
	}
	if len(reported) != 2 {
		t.Fatalf("got %d entry reports, want 2", len(reported))
	}
}

func TestUnpackTarGzWithDictSkipsNonRegularTypes(t *testing.T) {
	var tarBuf bytes.Buffer
	tw := ustar.NewWriter(&tarBuf)
	if err := tw.WriteEntry(ustar.Entry{ArchivePath: "f.txt", Kind: ustar.KindFile, Size: 5, Source: bytes.NewReader([]byte("hello"))}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	raw := tarBuf.Bytes()

	// Splice in a symlink header record (typeflag '2') with no data,
	// right before the trailer's two zero blocks, to exercise the skip
	// path without hand-building a second writer entry kind the
	// production Writer intentionally never emits.
	symlinkBlock := make([]byte, ustar.BlockSize)
	copy(symlinkBlock, []byte("link"))
	symlinkBlock[156] = '2' // typeflag offset
	copy(symlinkBlock[257:], []byte("ustar\x0000"))

	// checksum field: 8 spaces counted as 0x20 each during computation.
	var csum int
	for i, b := range symlinkBlock {
		if i >= 148 && i < 156 {
			csum += ' '
			continue
		}
		csum += int(b)
	}
	cs := []byte(toOctal6(csum))
	copy(symlinkBlock[148:], cs)
	symlinkBlock[154] = 0
	symlinkBlock[155] = ' '

	spliced := append([]byte{}, raw[:len(raw)-ustar.BlockSize*2]...)
	spliced = append(spliced, symlinkBlock...)
	spliced = append(spliced, make([]byte, ustar.BlockSize*2)...)

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write(spliced); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	adapter := storage.NewMemoryAdapter()
	p := pipeline.New()
	if err := p.UnpackTarGzWithDict(bytes.NewReader(gzBuf.Bytes()), adapter, "root", nil); err != nil {
		t.Fatal(err)
	}
	if p.Result().SkippedEntries != 1 {
		t.Fatalf("got SkippedEntries %d, want 1", p.Result().SkippedEntries)
	}
	if p.Result().EntriesWritten != 1 {
		t.Fatalf("got EntriesWritten %d, want 1", p.Result().EntriesWritten)
	}
}

func toOctal6(n int) string {
	digits := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		digits[i] = byte('0' + n%8)
		n /= 8
	}
	return string(digits)
}

func TestUnpackTarGzLowMemoryWithoutTempStorageFailsNeedsDictionary(t *testing.T) {
	member := buildTarGz(t, []pipeline.PackEntry{
		{ArchivePath: "f.txt", Kind: ustar.KindFile, Size: 5, Source: bytes.NewReader([]byte("hello"))},
	})

	adapter := storage.NewMemoryAdapter()
	p := pipeline.New(pipeline.WithLowMemory())
	err := p.UnpackTarGz(bytes.NewReader(member), adapter, "root", nil)
	if err == nil {
		t.Fatal("expected NeedsDictionary without TempStorage configured")
	}
}

func TestUnpackTarGzTempFileFallbackExtracts(t *testing.T) {
	member := buildTarGz(t, []pipeline.PackEntry{
		{ArchivePath: "a/b.txt", Kind: ustar.KindFile, Size: 3, Source: bytes.NewReader([]byte("xyz"))},
	})

	temp := storage.NewMemoryAdapter()
	dst := storage.NewMemoryAdapter()
	p := pipeline.New(pipeline.WithLowMemory(), pipeline.WithTempStorage(temp))
	if err := p.UnpackTarGz(bytes.NewReader(member), dst, "root", nil); err != nil {
		t.Fatal(err)
	}
	if p.State() != pipeline.StateDone {
		t.Fatalf("got state %v, want Done", p.State())
	}

	h, err := dst.Open("root/a/b.txt", storage.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	got, _ := io.ReadAll(h)
	if string(got) != "xyz" {
		t.Fatalf("got %q", got)
	}
	if temp.Exists(".go-targz-unpack.tmp") {
		t.Fatal("expected the temp file to be removed after phase two")
	}
}
