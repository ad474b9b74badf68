package orchestrate

import (
	"context"
	"errors"
	"testing"

	"github.com/bravohq/dispatch/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFileHandler(registry *stubRegistry, extractor upload.Extractor) *FileHandler {
	if extractor == nil {
		extractor = &mapExtractor{}
	}
	return NewFileHandler(registry, extractor, func(k string) string { return k }, zap.NewNop())
}

func registryWith(names ...string) *stubRegistry {
	reg := &stubRegistry{}
	for i, name := range names {
		reg.files = append(reg.files, upload.File{
			ID:               uint64(i + 1),
			Filename:         name + ".key",
			OriginalFilename: name,
		})
	}
	return reg
}

func TestFileHandler_NoFilesUploaded(t *testing.T) {
	h := newFileHandler(&stubRegistry{}, nil)

	res := h.Handle(context.Background(), nil, "s1")
	assert.True(t, res.Terminal)
	assert.Equal(t, "No files have been uploaded yet.", res.Reply)
	assert.Nil(t, res.Supplemental)
}

func TestFileHandler_ListsAllFiles(t *testing.T) {
	h := newFileHandler(registryWith("a.txt", "b.txt"), nil)

	res := h.Handle(context.Background(), nil, "s1")
	assert.True(t, res.Terminal)
	assert.Contains(t, res.Reply, "Uploaded files:")
	assert.Contains(t, res.Reply, "- a.txt (ID: 1)")
	assert.Contains(t, res.Reply, "- b.txt (ID: 2)")
	require.NotNil(t, res.Supplemental)
	assert.Contains(t, res.Supplemental.Content, "List of uploaded files:")
}

func TestFileHandler_AllIDsInvalid(t *testing.T) {
	h := newFileHandler(registryWith("a.txt"), nil)

	res := h.Handle(context.Background(), []string{"8", "9"}, "s1")
	assert.True(t, res.Terminal)
	assert.Equal(t, "No valid files found for IDs: 8, 9", res.Reply)
}

func TestFileHandler_MoreThanThreeFilesWithholdsContents(t *testing.T) {
	reg := registryWith("a.txt", "b.txt", "c.txt", "d.txt")
	ex := &mapExtractor{contents: map[string]string{
		"a.txt.key": "SECRET-A", "b.txt.key": "SECRET-B",
		"c.txt.key": "SECRET-C", "d.txt.key": "SECRET-D",
	}}
	h := newFileHandler(reg, ex)

	res := h.Handle(context.Background(), []string{"1", "2", "3", "4", "99"}, "s1")
	assert.True(t, res.Terminal)
	assert.Contains(t, res.Reply, "Here are the requested file names:")
	assert.Contains(t, res.Reply, "Note: File contents not displayed for more than 3 files.")
	assert.Contains(t, res.Reply, "Invalid IDs: 99.")
	assert.NotContains(t, res.Reply, "SECRET")
	require.NotNil(t, res.Supplemental)
	assert.NotContains(t, res.Supplemental.Content, "SECRET")
}

func TestFileHandler_InjectsContentsForSmallBatch(t *testing.T) {
	reg := registryWith("a.txt", "b.txt")
	ex := &mapExtractor{contents: map[string]string{
		"a.txt.key": "alpha body",
		"b.txt.key": "beta body",
	}}
	h := newFileHandler(reg, ex)

	res := h.Handle(context.Background(), []string{"1", "2"}, "s1")
	assert.False(t, res.Terminal, "content injection must fall through to chat generation")
	assert.Empty(t, res.Reply)
	require.NotNil(t, res.Supplemental)
	assert.Contains(t, res.Supplemental.Content, "File: a.txt")
	assert.Contains(t, res.Supplemental.Content, "***alpha body***")
	assert.Contains(t, res.Supplemental.Content, "File: b.txt")
}

func TestFileHandler_PerFileErrorsDoNotAbortBatch(t *testing.T) {
	reg := registryWith("good.txt", "bad.txt")
	ex := &mapExtractor{contents: map[string]string{"good.txt.key": "readable"}}
	h := newFileHandler(reg, ex)

	res := h.Handle(context.Background(), []string{"1", "2"}, "s1")
	assert.False(t, res.Terminal)
	require.NotNil(t, res.Supplemental)
	assert.Contains(t, res.Supplemental.Content, "***readable***")
	assert.Contains(t, res.Supplemental.Content, "Error reading file 'bad.txt'")
}

func TestFileHandler_AllReadsFailed(t *testing.T) {
	h := newFileHandler(registryWith("a.txt"), &mapExtractor{})

	res := h.Handle(context.Background(), []string{"1", "77"}, "s1")
	assert.True(t, res.Terminal)
	assert.Contains(t, res.Reply, "Error reading file 'a.txt'")
	assert.Contains(t, res.Reply, "Invalid file IDs: 77.")
	assert.Nil(t, res.Supplemental)
}

func TestFileHandler_RegistryErrorDegrades(t *testing.T) {
	h := newFileHandler(&stubRegistry{err: errors.New("db down")}, nil)
	res := h.Handle(context.Background(), []string{"1"}, "s1")
	assert.Equal(t, Result{}, res)
}
