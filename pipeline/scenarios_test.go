package pipeline_test

import (
	"bytes"
	"io"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tobozo/go-targz/gzip"
	"github.com/tobozo/go-targz/pipeline"
	"github.com/tobozo/go-targz/storage"
	"github.com/tobozo/go-targz/ustar"
)

// tarGzTree packs entries, unpacks the result back out through the
// dictionary scenario, and returns the extracted {path: contents} map
// so a test can structurally diff it against what was packed — a
// round-trip property that should hold for the whole pipeline, not
// just the codec layer.
func tarGzTree(entries []pipeline.PackEntry) (map[string]string, error) {
	var archive bytes.Buffer
	packer := pipeline.New()
	if err := packer.PackTarGz(&archive, entries, 0, nil); err != nil {
		return nil, err
	}

	dst := storage.NewMemoryAdapter()
	unpacker := pipeline.New()
	if err := unpacker.UnpackTarGzWithDict(bytes.NewReader(archive.Bytes()), dst, "out", nil); err != nil {
		return nil, err
	}

	enum, err := dst.Enumerate("out", true, 0)
	if err != nil {
		return nil, err
	}
	got := map[string]string{}
	for {
		e, done, err := enum.Next()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		if e.IsDir {
			continue
		}
		h, err := dst.Open("out/"+e.Path, storage.ReadOnly)
		if err != nil {
			return nil, err
		}
		b, err := io.ReadAll(h)
		h.Close()
		if err != nil {
			return nil, err
		}
		got[e.Path] = string(b)
	}
	return got, nil
}

var _ = Describe("pack then unpack through the dictionary scenario", func() {
	It("round-trips a small directory tree byte for byte", func() {
		entries := []pipeline.PackEntry{
			{ArchivePath: "docs", Kind: ustar.KindDir},
			{ArchivePath: "docs/readme.txt", Kind: ustar.KindFile, Size: 12, Source: bytes.NewReader([]byte("hello world!"))},
			{ArchivePath: "docs/notes.txt", Kind: ustar.KindFile, Size: 24, Source: bytes.NewReader([]byte("one two three four five."))},
		}

		got, err := tarGzTree(entries)
		Expect(err).NotTo(HaveOccurred())

		want := map[string]string{
			"docs/readme.txt": "hello world!",
			"docs/notes.txt":  "one two three four five.",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			Fail("extracted tree mismatch (-want +got):\n" + diff)
		}
	})

	It("round-trips the literal single three-byte file entry", func() {
		entries := []pipeline.PackEntry{
			{ArchivePath: "f", Kind: ustar.KindFile, Size: 3, Source: bytes.NewReader([]byte{0x01, 0x02, 0x03})},
		}
		got, err := tarGzTree(entries)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveKeyWithValue("f", string([]byte{0x01, 0x02, 0x03})))
	})
})

var _ = Describe("corruption detection", func() {
	It("fails a gzip member whose trailer CRC does not match its payload", func() {
		var buf bytes.Buffer
		packer := pipeline.New()
		Expect(packer.PackTarGz(&buf, []pipeline.PackEntry{
			{ArchivePath: "x.txt", Kind: ustar.KindFile, Size: 4, Source: bytes.NewReader([]byte("abcd"))},
		}, 0, nil)).To(Succeed())

		corrupted := append([]byte{}, buf.Bytes()...)
		corrupted[len(corrupted)-5] ^= 0xFF // inside the CRC32 field

		dst := storage.NewMemoryAdapter()
		unpacker := pipeline.New()
		err := unpacker.UnpackTarGzWithDict(bytes.NewReader(corrupted), dst, "out", nil)
		Expect(err).To(HaveOccurred())
		Expect(unpacker.State()).To(Equal(pipeline.StateFailed))
	})

	It("fails a truncated gzip member instead of hanging", func() {
		var buf bytes.Buffer
		packer := pipeline.New()
		Expect(packer.PackTarGz(&buf, []pipeline.PackEntry{
			{ArchivePath: "y.txt", Kind: ustar.KindFile, Size: 4, Source: bytes.NewReader([]byte("wxyz"))},
		}, 0, nil)).To(Succeed())

		truncated := buf.Bytes()[:buf.Len()-10]

		dst := storage.NewMemoryAdapter()
		unpacker := pipeline.New()
		err := unpacker.UnpackTarGzWithDict(bytes.NewReader(truncated), dst, "out", nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("streaming size mismatch", func() {
	It("flags a declared uncompressed size that does not match the actual decoded length", func() {
		var tarBuf bytes.Buffer
		tw := ustar.NewWriter(&tarBuf)
		Expect(tw.WriteEntry(ustar.Entry{ArchivePath: "z.txt", Kind: ustar.KindFile, Size: 5, Source: bytes.NewReader([]byte("hello"))})).To(Succeed())
		Expect(tw.Close()).To(Succeed())

		var gzBuf bytes.Buffer
		gzw := gzip.NewWriter(&gzBuf)
		_, err := gzw.Write(tarBuf.Bytes())
		Expect(err).NotTo(HaveOccurred())
		Expect(gzw.Close()).To(Succeed())

		dst := storage.NewMemoryAdapter()
		p := pipeline.New()
		err = p.UnpackGzToFile(bytes.NewReader(gzBuf.Bytes()), dst, "raw.tar", int64(tarBuf.Len())+1, nil)
		Expect(err).To(HaveOccurred())
		Expect(p.State()).To(Equal(pipeline.StateFailed))
	})
})

var _ = Describe("low-memory sink-reflective back-reference at distance 20000", func() {
	It("round-trips through the temp-file fallback when no dictionary window is available", func() {
		var payload bytes.Buffer
		payload.WriteString("anchor-sequence-that-will-repeat-at-a-long-distance|")
		payload.Write(bytes.Repeat([]byte("filler-"), 2840)) // ~19880 bytes of filler
		payload.WriteString("anchor-sequence-that-will-repeat-at-a-long-distance|")

		entries := []pipeline.PackEntry{
			{ArchivePath: "big.txt", Kind: ustar.KindFile, Size: int64(payload.Len()), Source: bytes.NewReader(payload.Bytes())},
		}
		var archive bytes.Buffer
		packer := pipeline.New()
		Expect(packer.PackTarGz(&archive, entries, 0, nil)).To(Succeed())

		// TempStorage is OS-backed so its write handle is an *os.File and
		// therefore satisfies io.ReaderAt — the real sink-reflective path,
		// not the windowed fallback a MemoryAdapter handle would force.
		temp := storage.NewOSAdapter(GinkgoT().TempDir())
		dst := storage.NewMemoryAdapter()
		unpacker := pipeline.New(pipeline.WithLowMemory(), pipeline.WithTempStorage(temp))
		Expect(unpacker.UnpackTarGz(bytes.NewReader(archive.Bytes()), dst, "out", nil)).To(Succeed())

		h, err := dst.Open("out/big.txt", storage.ReadOnly)
		Expect(err).NotTo(HaveOccurred())
		defer h.Close()
		got, err := io.ReadAll(h)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(payload.Bytes()))
	})
})
