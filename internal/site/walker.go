// Package site discovers the HTML pages of a pre-built static site.
package site

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// ErrDirectoryNotFound is returned when the build directory is missing or is
// not a directory.
var ErrDirectoryNotFound = errors.New("build directory not found")

// Walker enumerates the HTML files below a build directory.
type Walker struct {
	root string
}

// NewWalker validates root and returns a Walker for it.
func NewWalker(root string) (*Walker, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve build dir %q: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, root)
		}
		return nil, fmt.Errorf("stat build dir %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectoryNotFound, root)
	}

	return &Walker{root: abs}, nil
}

// Root returns the absolute build directory.
func (w *Walker) Root() string {
	return w.root
}

// Pages returns a one-shot sequence of the HTML pages below the root, in
// lexical order. Symlinked directories are followed, but every directory is
// visited at most once by canonical path, so symlink cycles terminate.
// Errors for unreadable entries are yielded alongside a nil page; the walk
// continues if the consumer keeps ranging.
func (w *Walker) Pages(ctx context.Context) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		t := &traversal{
			root:  w.root,
			ctx:   ctx,
			yield: yield,
			dirs:  make(map[string]struct{}),
			files: make(map[string]struct{}),
		}
		t.walk(w.root)
	}
}

type traversal struct {
	root  string
	ctx   context.Context
	yield func(*Page, error) bool
	dirs  map[string]struct{}
	files map[string]struct{}
	seq   int
}

// walk returns false once the consumer has stopped the iteration.
func (t *traversal) walk(dir string) bool {
	if err := t.ctx.Err(); err != nil {
		t.yield(nil, err)
		return false
	}

	canon, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return t.yield(nil, fmt.Errorf("resolve %s: %w", dir, err))
	}
	if _, seen := t.dirs[canon]; seen {
		return true
	}
	t.dirs[canon] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return t.yield(nil, fmt.Errorf("read dir %s: %w", dir, err))
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		mode := e.Type()
		if mode&fs.ModeSymlink != 0 {
			info, statErr := os.Stat(path)
			if statErr != nil {
				if !t.yield(nil, fmt.Errorf("follow symlink %s: %w", path, statErr)) {
					return false
				}
				continue
			}
			mode = info.Mode().Type()
		}

		switch {
		case mode.IsDir():
			if !t.walk(path) {
				return false
			}
		case mode.IsRegular() && isHTML(e.Name()):
			page, pageErr := t.page(path)
			if pageErr != nil {
				if !t.yield(nil, pageErr) {
					return false
				}
				continue
			}
			if page == nil {
				continue
			}
			if !t.yield(page, nil) {
				return false
			}
		}
	}
	return true
}

// page builds the Page for path, or returns nil if the same file was already
// reached through another symlink.
func (t *traversal) page(path string) (*Page, error) {
	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if _, seen := t.files[canon]; seen {
		return nil, nil
	}
	t.files[canon] = struct{}{}

	rel, err := filepath.Rel(t.root, path)
	if err != nil {
		return nil, fmt.Errorf("relative path for %s: %w", path, err)
	}

	p := &Page{
		Path:      path,
		Canonical: canon,
		URLPath:   "/" + filepath.ToSlash(rel),
		Seq:       t.seq,
		Anchors:   make(map[string]struct{}),
		Status:    ParseOK,
	}
	t.seq++
	return p, nil
}

func isHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}
