package storage

import (
	"bytes"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/tobozo/go-targz/errcode"
)

// MemoryAdapter is an in-memory Adapter, useful for tests that want to
// exercise a pipeline without touching a real filesystem.
type MemoryAdapter struct {
	files map[string]*memFile
	dirs  map[string]bool
}

type memFile struct {
	data  []byte
	mtime int64
}

// NewMemoryAdapter returns an empty MemoryAdapter with its root
// directory already present.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		files: make(map[string]*memFile),
		dirs:  map[string]bool{".": true},
	}
}

func cleanKey(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

func (a *MemoryAdapter) Open(p string, mode Mode) (Handle, error) {
	key := cleanKey(p)
	switch mode {
	case ReadOnly:
		f, ok := a.files[key]
		if !ok {
			return nil, errcode.New(errcode.FsError)
		}
		return &memReadHandle{r: bytes.NewReader(f.data)}, nil
	case WriteOnly:
		if err := a.MkdirParents(path.Dir(key)); err != nil {
			return nil, err
		}
		h := &memWriteHandle{adapter: a, key: key}
		return h, nil
	default:
		return nil, errcode.New(errcode.FsError)
	}
}

func (a *MemoryAdapter) Stat(p string) (Info, error) {
	key := cleanKey(p)
	if a.dirs[key] {
		return Info{IsDir: true}, nil
	}
	if f, ok := a.files[key]; ok {
		return Info{Size: int64(len(f.data)), Mtime: f.mtime}, nil
	}
	return Info{}, errcode.New(errcode.FsError)
}

func (a *MemoryAdapter) Exists(p string) bool {
	key := cleanKey(p)
	if a.dirs[key] {
		return true
	}
	_, ok := a.files[key]
	return ok
}

func (a *MemoryAdapter) MkdirParents(p string) error {
	key := cleanKey(p)
	for key != "." && key != "/" && key != "" {
		a.dirs[key] = true
		key = path.Dir(key)
	}
	a.dirs["."] = true
	return nil
}

func (a *MemoryAdapter) Remove(p string) error {
	key := cleanKey(p)
	delete(a.files, key)
	delete(a.dirs, key)
	prefix := key + "/"
	for k := range a.files {
		if strings.HasPrefix(k, prefix) {
			delete(a.files, k)
		}
	}
	for k := range a.dirs {
		if strings.HasPrefix(k, prefix) {
			delete(a.dirs, k)
		}
	}
	return nil
}

func (a *MemoryAdapter) Enumerate(dir string, recursive bool, levels int) (Enumerator, error) {
	root := cleanKey(dir)
	if root != "." && !a.dirs[root] {
		return nil, errcode.New(errcode.FsError)
	}

	var out []Entry
	add := func(p string, isDir bool, size int64) {
		rel := strings.TrimPrefix(p, root+"/")
		if root == "." {
			rel = p
		}
		if rel == "" {
			return
		}
		depth := strings.Count(rel, "/") + 1
		if !recursive && depth > 1 {
			return
		}
		if levels > 0 && depth > levels {
			return
		}
		out = append(out, Entry{Path: rel, IsDir: isDir, Size: size})
	}

	for d := range a.dirs {
		if d == root || d == "." {
			continue
		}
		if d == root || strings.HasPrefix(d, root+"/") || root == "." {
			add(d, true, 0)
		}
	}
	for f, mf := range a.files {
		if f == root || strings.HasPrefix(f, root+"/") || root == "." {
			add(f, false, int64(len(mf.data)))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return &sliceEnumerator{entries: out}, nil
}

type memReadHandle struct {
	r *bytes.Reader
}

func (h *memReadHandle) Read(p []byte) (int, error) { return h.r.Read(p) }
func (h *memReadHandle) Write([]byte) (int, error)  { return 0, errcode.New(errcode.WriteError) }
func (h *memReadHandle) Close() error               { return nil }

type memWriteHandle struct {
	adapter *MemoryAdapter
	key     string
	buf     bytes.Buffer
	closed  bool
}

func (h *memWriteHandle) Read([]byte) (int, error) {
	return 0, errcode.New(errcode.FsError)
}

func (h *memWriteHandle) Write(p []byte) (int, error) {
	return h.buf.Write(p)
}

func (h *memWriteHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.adapter.files[h.key] = &memFile{data: append([]byte(nil), h.buf.Bytes()...), mtime: time.Now().Unix()}
	return nil
}
