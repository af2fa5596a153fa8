package pipeline_test

import (
	"io"
	"testing"

	"github.com/tobozo/go-targz/storage"
)

type unpackTarget struct {
	*storage.MemoryAdapter
}

func newUnpackTarget() *unpackTarget {
	return &unpackTarget{MemoryAdapter: storage.NewMemoryAdapter()}
}

func (u *unpackTarget) mustRead(t *testing.T, path string) string {
	t.Helper()
	h, err := u.Open(path, storage.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	b, err := io.ReadAll(h)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
