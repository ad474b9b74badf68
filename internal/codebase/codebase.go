// Package codebase exposes the running service's own source tree for
// the code-context and code-structure handlers.
package codebase

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var defaultExcludeDirs = map[string]struct{}{
	"uploads": {}, ".git": {}, "node_modules": {}, "vendor": {},
	"dist": {}, "build": {}, "testdata": {},
}

var excludeFileTypes = map[string]struct{}{
	".log": {}, ".env": {}, ".png": {}, ".db": {},
}

// Source reads Go files from the project root and selected
// subdirectories.
type Source struct {
	root        string
	allowedDirs []string
	logger      *zap.Logger
}

func NewSource(root string, logger *zap.Logger) *Source {
	if root == "" {
		root, _ = os.Getwd()
	}
	return &Source{
		root:        root,
		allowedDirs: []string{"cmd", "internal"},
		logger:      logger,
	}
}

// Content concatenates the source of every Go file in the root and the
// allowed subdirectories. Unreadable files are skipped, not fatal.
func (s *Source) Content() (string, error) {
	var b strings.Builder

	appendDir := func(dir string) {
		_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if _, skip := defaultExcludeDirs[d.Name()]; skip && path != dir {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(d.Name(), ".go") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				s.logger.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
				return nil
			}
			b.Write(data)
			b.WriteString("\n\n")
			return nil
		})
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, e.Name()))
		if err != nil {
			continue
		}
		b.Write(data)
		b.WriteString("\n\n")
	}
	for _, dir := range s.allowedDirs {
		full := filepath.Join(s.root, dir)
		if info, err := os.Stat(full); err == nil && info.IsDir() {
			appendDir(full)
		}
	}

	return b.String(), nil
}
