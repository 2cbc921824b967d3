package resource

import (
	"fmt"
	"io/fs"
	"strings"
)

const (
	// IndexPath replaces a bare "/" before lookup.
	IndexPath = "/index.html"
	// NotFoundKey is served when the requested key is absent.
	NotFoundKey = "404.html"
	// FallbackBody is served when NotFoundKey is absent too.
	FallbackBody = "<html><body><h1>404 - Not Found</h1></body></html>"
)

// Lookuper is a read-only keyed byte store.
type Lookuper interface {
	Lookup(key string) ([]byte, bool)
}

// Store is an immutable set of static files keyed by slash path
// without a leading slash ("index.html", "css/site.css").
// It is safe for concurrent use.
type Store struct {
	files map[string][]byte
}

// NewStore copies files into a new Store.
func NewStore(files map[string][]byte) *Store {
	s := &Store{files: make(map[string][]byte, len(files))}
	for key, data := range files {
		s.files[key] = append([]byte(nil), data...)
	}
	return s
}

// Load reads every regular file in fsys into a Store.
func Load(fsys fs.FS) (*Store, error) {
	s := &Store{files: make(map[string][]byte)}
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		s.files[path] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	return s, nil
}

func (s *Store) Lookup(key string) ([]byte, bool) {
	data, ok := s.files[key]
	return data, ok
}

func (s *Store) Len() int {
	return len(s.files)
}

// Key maps a request path to its lookup key: "/" becomes "index.html",
// otherwise exactly one leading slash is removed. Nothing is decoded.
func Key(path string) string {
	if path == "/" {
		path = IndexPath
	}
	return strings.TrimPrefix(path, "/")
}
