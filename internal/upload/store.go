package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore keeps uploaded files on the local disk. Cloud blob
// storage would implement the same surface behind a different type.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes the file under a fresh storage key and returns the key
// and its retrieval URL.
func (s *LocalStore) Save(originalName string, r io.Reader) (key, url string, err error) {
	key = fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(originalName))

	dst, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return "", "", err
	}
	return key, "/uploads/" + key, nil
}

func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.dir, filepath.Base(key))
}

// sanitizeFilename strips path separators and control characters so a
// client-supplied name cannot escape the uploads directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == 0:
			return '_'
		case r < 0x20:
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	return name
}
