package codebase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const maxDiagramDepth = 4

// Renderer turns DOT source into a PNG on disk. The production
// implementation shells out to graphviz.
type Renderer interface {
	Render(ctx context.Context, dotSource, outPath string) error
}

type GraphvizRenderer struct{}

func (GraphvizRenderer) Render(ctx context.Context, dotSource, outPath string) error {
	cmd := exec.CommandContext(ctx, "dot", "-Tpng", "-o", outPath)
	cmd.Stdin = strings.NewReader(dotSource)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("graphviz: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Visualizer renders a structure diagram of the source tree into the
// uploads directory. Renders are memoized by a hash of the tree so an
// unchanged codebase reuses the previous image.
type Visualizer struct {
	root      string
	outputDir string
	renderer  Renderer
	cache     *gocache.Cache
	logger    *zap.Logger
}

func NewVisualizer(root, outputDir string, renderer Renderer, logger *zap.Logger) *Visualizer {
	if root == "" {
		root, _ = os.Getwd()
	}
	return &Visualizer{
		root:      root,
		outputDir: outputDir,
		renderer:  renderer,
		cache:     gocache.New(30*time.Minute, 10*time.Minute),
		logger:    logger,
	}
}

// Diagram returns the URL of the rendered structure image.
func (v *Visualizer) Diagram(ctx context.Context) (string, error) {
	hash, err := v.treeHash()
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("codebase_structure_%s.png", hash)
	url := "/uploads/" + filename
	outPath := filepath.Join(v.outputDir, filename)

	if _, hit := v.cache.Get(hash); hit {
		if _, err := os.Stat(outPath); err == nil {
			return url, nil
		}
	}

	dot, err := v.dotSource()
	if err != nil {
		return "", err
	}
	if err := v.renderer.Render(ctx, dot, outPath); err != nil {
		return "", err
	}
	v.cache.SetDefault(hash, outPath)
	v.logger.Info("codebase diagram rendered", zap.String("path", outPath))
	return url, nil
}

func (v *Visualizer) dotSource() (string, error) {
	var b strings.Builder
	b.WriteString("digraph codebase {\n")
	b.WriteString("  graph [dpi=300];\n")

	var walk func(path, parent string, depth int) error
	walk = func(path, parent string, depth int) error {
		if depth > maxDiagramDepth {
			return nil
		}
		id := nodeID(path)
		fmt.Fprintf(&b, "  %q [label=%q, shape=folder];\n", id, filepath.Base(path))
		if parent != "" {
			fmt.Fprintf(&b, "  %q -> %q;\n", parent, id)
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			v.logger.Warn("skipping directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, e := range entries {
			child := filepath.Join(path, e.Name())
			if e.IsDir() {
				if _, skip := defaultExcludeDirs[e.Name()]; skip {
					continue
				}
				if err := walk(child, id, depth+1); err != nil {
					return err
				}
				continue
			}
			if excludedFile(e.Name()) {
				continue
			}
			fid := nodeID(child)
			fmt.Fprintf(&b, "  %q [label=%q, shape=note];\n", fid, e.Name())
			fmt.Fprintf(&b, "  %q -> %q;\n", id, fid)
		}
		return nil
	}

	if err := walk(v.root, "", 0); err != nil {
		return "", err
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// treeHash fingerprints the tree's file contents so renders can be
// reused until the source changes.
func (v *Visualizer) treeHash() (string, error) {
	h := md5.New()
	err := filepath.WalkDir(v.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if _, skip := defaultExcludeDirs[d.Name()]; skip && path != v.root {
				return filepath.SkipDir
			}
			return nil
		}
		if excludedFile(d.Name()) {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		_, _ = io.Copy(h, f)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func nodeID(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

func excludedFile(name string) bool {
	_, ok := excludeFileTypes[filepath.Ext(name)]
	return ok
}
