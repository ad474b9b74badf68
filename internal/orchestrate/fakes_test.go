package orchestrate

import (
	"context"
	"errors"

	"github.com/bravohq/dispatch/internal/ai"
	"github.com/bravohq/dispatch/internal/upload"
)

// fakeGateway replays scripted chat replies in call order.
type fakeGateway struct {
	replies   []string
	errs      []error
	chatCalls int
	requests  []ai.ChatRequest

	imageURL   string
	imageErr   error
	imageCalls int
}

func (g *fakeGateway) Chat(ctx context.Context, req ai.ChatRequest) (string, error) {
	i := g.chatCalls
	g.chatCalls++
	g.requests = append(g.requests, req)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	reply := ""
	if i < len(g.replies) {
		reply = g.replies[i]
	}
	return reply, err
}

func (g *fakeGateway) GenerateImage(ctx context.Context, prompt string) (string, error) {
	g.imageCalls++
	return g.imageURL, g.imageErr
}

type stubImager struct {
	url   string
	err   error
	calls int
}

func (s *stubImager) GenerateImage(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.url, s.err
}

type stubDiagrammer struct {
	url   string
	err   error
	calls int
}

func (s *stubDiagrammer) Diagram(ctx context.Context) (string, error) {
	s.calls++
	return s.url, s.err
}

type stubCode struct {
	content string
	err     error
}

func (s *stubCode) Content() (string, error) { return s.content, s.err }

type stubSearcher struct {
	content string
	err     error
	calls   int
}

func (s *stubSearcher) Search(ctx context.Context, query string, history []ai.Message) (string, error) {
	s.calls++
	return s.content, s.err
}

// stubRegistry is an in-memory FileRegistry.
type stubRegistry struct {
	files []upload.File
	err   error
}

func (s *stubRegistry) ListBySession(ctx context.Context, sessionID string) ([]upload.File, error) {
	return s.files, s.err
}

// mapExtractor serves file contents keyed by path; missing keys error.
type mapExtractor struct {
	contents map[string]string
}

func (e *mapExtractor) Extract(ctx context.Context, path, contentType string) (string, error) {
	if text, ok := e.contents[path]; ok {
		return text, nil
	}
	return "", errors.New("no such file")
}

// fixedCounter charges the same cost for every message.
type fixedCounter struct {
	cost int
}

func (c fixedCounter) Count(text string) int { return c.cost }
