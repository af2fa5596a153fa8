package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tobozo/go-targz/errcode"
)

// OSAdapter implements Adapter directly against the host filesystem,
// rooted at Root (which may be "" for an unrooted adapter operating on
// absolute or working-directory-relative paths).
type OSAdapter struct {
	Root string
}

// NewOSAdapter returns an OSAdapter rooted at root.
func NewOSAdapter(root string) *OSAdapter {
	return &OSAdapter{Root: root}
}

func (a *OSAdapter) resolve(path string) string {
	if a.Root == "" {
		return path
	}
	return filepath.Join(a.Root, path)
}

func (a *OSAdapter) Open(path string, mode Mode) (Handle, error) {
	full := a.resolve(path)
	switch mode {
	case ReadOnly:
		f, err := os.Open(full)
		if err != nil {
			return nil, errcode.Wrap(errcode.FsError, err)
		}
		return f, nil
	case WriteOnly:
		if err := a.MkdirParents(filepath.Dir(path)); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			if os.IsPermission(err) {
				return nil, errcode.Wrap(errcode.FsError, err)
			}
			if isNoSpace(err) {
				return nil, errcode.Wrap(errcode.FsFull, err)
			}
			return nil, errcode.Wrap(errcode.FsError, err)
		}
		return f, nil
	default:
		return nil, errcode.New(errcode.FsError)
	}
}

func (a *OSAdapter) Stat(path string) (Info, error) {
	fi, err := os.Stat(a.resolve(path))
	if err != nil {
		return Info{}, errcode.Wrap(errcode.FsError, err)
	}
	return Info{
		IsDir: fi.IsDir(),
		Size:  fi.Size(),
		Mtime: fi.ModTime().Unix(),
		Mode:  uint32(fi.Mode().Perm()),
	}, nil
}

func (a *OSAdapter) Exists(path string) bool {
	_, err := os.Stat(a.resolve(path))
	return err == nil
}

func (a *OSAdapter) MkdirParents(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(a.resolve(path), 0755); err != nil {
		return errcode.Wrap(errcode.FsError, err)
	}
	return nil
}

func (a *OSAdapter) Remove(path string) error {
	if err := os.RemoveAll(a.resolve(path)); err != nil {
		return errcode.Wrap(errcode.FsError, err)
	}
	return nil
}

func (a *OSAdapter) Enumerate(dir string, recursive bool, levels int) (Enumerator, error) {
	root := a.resolve(dir)
	if _, err := os.Stat(root); err != nil {
		return nil, errcode.Wrap(errcode.FsError, err)
	}

	var entries []Entry
	baseDepth := depthOf(root)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if !recursive && depthOf(path) > baseDepth+1 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if levels > 0 && depthOf(path)-baseDepth > levels {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		entries = append(entries, Entry{
			Path:  filepath.ToSlash(rel),
			IsDir: d.IsDir(),
			Size:  info.Size(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, errcode.Wrap(errcode.FsError, walkErr)
	}
	return &sliceEnumerator{entries: entries}, nil
}

// TotalBytes and FreeBytes are intentionally not implemented on
// OSAdapter: the free/total space syscalls are platform-specific
// (statfs on POSIX, GetDiskFreeSpaceEx on Windows) and no library in
// this module's dependency set provides a portable wrapper, so
// OSAdapter does not satisfy CapacityReporter. A caller that needs
// pre-flight capacity checks on a given platform can wrap OSAdapter and
// add it there.

func depthOf(p string) int {
	clean := filepath.Clean(p)
	n := 0
	for _, r := range clean {
		if r == filepath.Separator {
			n++
		}
	}
	return n
}

type sliceEnumerator struct {
	entries []Entry
	idx     int
}

func (e *sliceEnumerator) Next() (Entry, bool, error) {
	if e.idx >= len(e.entries) {
		return Entry{}, true, nil
	}
	entry := e.entries[e.idx]
	e.idx++
	return entry, false, nil
}

// isNoSpace recognizes the platform-independent "no space left on
// device" message os returns, without depending on syscall.ENOSPC,
// which is not portable to every GOOS this module may target.
func isNoSpace(err error) bool {
	return strings.Contains(err.Error(), "no space left on device")
}
