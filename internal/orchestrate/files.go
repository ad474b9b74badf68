package orchestrate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bravohq/dispatch/internal/ai"
	"github.com/bravohq/dispatch/internal/upload"
	"go.uber.org/zap"
)

// maxInlineFiles caps how many file bodies get injected into one turn.
// Above it only names are listed, which bounds prompt growth.
const maxInlineFiles = 3

// FileRegistry is the slice of the upload registry the file handler
// needs.
type FileRegistry interface {
	ListBySession(ctx context.Context, sessionID string) ([]upload.File, error)
}

// FileHandler answers questions about the session's uploaded files,
// either terminally (lists, errors) or by supplementing the chat
// prompt with file contents.
type FileHandler struct {
	registry  FileRegistry
	extractor upload.Extractor
	pathFor   func(storageKey string) string
	logger    *zap.Logger
}

func NewFileHandler(registry FileRegistry, extractor upload.Extractor, pathFor func(string) string, logger *zap.Logger) *FileHandler {
	return &FileHandler{registry: registry, extractor: extractor, pathFor: pathFor, logger: logger}
}

func (h *FileHandler) Handle(ctx context.Context, fileIDs []string, sessionID string) Result {
	files, err := h.registry.ListBySession(ctx, sessionID)
	if err != nil {
		h.logger.Warn("listing uploaded files failed", zap.Error(err))
		return Result{}
	}

	index := make(map[string]upload.File, len(files))
	for _, f := range files {
		index[strconv.FormatUint(f.ID, 10)] = f
	}

	if len(fileIDs) == 0 {
		return h.listAll(files)
	}

	valid := make([]string, 0, len(fileIDs))
	invalid := make([]string, 0)
	for _, id := range fileIDs {
		if _, ok := index[id]; ok {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}

	switch {
	case len(valid) == 0:
		if len(invalid) > 0 {
			return Result{Terminal: true, Reply: "No valid files found for IDs: " + strings.Join(invalid, ", ")}
		}
		return Result{Terminal: true, Reply: "No valid file IDs found."}
	case len(valid) > maxInlineFiles:
		return h.listRequested(index, valid, invalid)
	default:
		return h.injectContents(ctx, index, valid, invalid)
	}
}

func (h *FileHandler) listAll(files []upload.File) Result {
	if len(files) == 0 {
		return Result{Terminal: true, Reply: "No files have been uploaded yet."}
	}

	lines := make([]string, 0, len(files))
	for _, f := range files {
		lines = append(lines, fmt.Sprintf("- %s (ID: %d)", f.OriginalFilename, f.ID))
	}
	list := strings.Join(lines, "\n")

	return Result{
		Terminal: true,
		Reply:    "Uploaded files:\n" + list,
		Supplemental: &ai.Message{
			Role:    ai.RoleSystem,
			Content: "List of uploaded files:\n***" + list + "***",
		},
	}
}

func (h *FileHandler) listRequested(index map[string]upload.File, valid, invalid []string) Result {
	lines := make([]string, 0, len(valid))
	for _, id := range valid {
		f := index[id]
		lines = append(lines, fmt.Sprintf("- %s (ID: %s)", f.OriginalFilename, id))
	}
	list := strings.Join(lines, "\n")

	reply := "Here are the requested file names:\n" + list +
		"\n\nNote: File contents not displayed for more than 3 files."
	if len(invalid) > 0 {
		reply += "\nInvalid IDs: " + strings.Join(invalid, ", ") + "."
	}

	return Result{
		Terminal: true,
		Reply:    reply,
		Supplemental: &ai.Message{
			Role:    ai.RoleSystem,
			Content: "Requested file names:\n***" + list + "***",
		},
	}
}

// injectContents reads up to maxInlineFiles files and returns their
// text as supplemental grounding for the chat turn. Per-file read
// errors are collected, never fatal to the batch.
func (h *FileHandler) injectContents(ctx context.Context, index map[string]upload.File, valid, invalid []string) Result {
	type fileText struct {
		name    string
		content string
	}
	var contents []fileText
	var errs []string

	for _, id := range valid {
		f := index[id]
		text, err := h.extractor.Extract(ctx, h.pathFor(f.Filename), f.FileType)
		if err != nil {
			h.logger.Warn("file read failed",
				zap.String("file", f.OriginalFilename), zap.Error(err))
			errs = append(errs, fmt.Sprintf("Error reading file '%s': file not available.", f.OriginalFilename))
			continue
		}
		contents = append(contents, fileText{name: f.OriginalFilename, content: text})
	}

	if len(contents) == 0 {
		reply := strings.Join(errs, "\n")
		if len(invalid) > 0 {
			reply += "\nInvalid file IDs: " + strings.Join(invalid, ", ") + "."
		}
		return Result{Terminal: true, Reply: reply}
	}

	blocks := make([]string, 0, len(contents))
	for _, fc := range contents {
		blocks = append(blocks, fmt.Sprintf("File: %s\nContent:\n***%s***", fc.name, fc.content))
	}
	supplemental := "You have been supplemented with file contents:\n" + strings.Join(blocks, "\n\n")
	if len(errs) > 0 {
		supplemental += "\n\n" + strings.Join(errs, "\n")
	}
	if len(invalid) > 0 {
		supplemental += "\nInvalid file IDs: " + strings.Join(invalid, ", ") + "."
	}

	return Result{
		Supplemental: &ai.Message{Role: ai.RoleSystem, Content: supplemental},
	}
}
