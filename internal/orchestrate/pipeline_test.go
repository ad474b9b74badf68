package orchestrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/bravohq/dispatch/internal/conversation"
	"github.com/bravohq/dispatch/internal/events"
	"github.com/bravohq/dispatch/internal/upload"
	gormsqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&conversation.Conversation{}, &conversation.Message{}, &upload.File{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestPipeline(t *testing.T, db *gorm.DB, gw *fakeGateway, imager *stubImager) *Pipeline {
	t.Helper()
	logger := zap.NewNop()
	registry := upload.NewRegistry(db)
	files := NewFileHandler(registry, upload.NewTextExtractor(100), func(k string) string { return k }, logger)
	router := NewRouter(imager, &stubDiagrammer{}, files, &stubCode{}, &stubSearcher{}, logger)
	classifier := NewClassifier(gw, "classifier-model", logger)
	trimmer := NewTrimmer(fixedCounter{cost: 1}, 50000)

	return NewPipeline(gw, classifier, router,
		conversation.NewRepo(db), registry, trimmer,
		events.NopNotifier{}, "You are a helpful AI agent.", 20, logger)
}

func storedMessages(t *testing.T, db *gorm.DB) []conversation.Message {
	t.Helper()
	var msgs []conversation.Message
	if err := db.Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	return msgs
}

func TestRespond_PlainChatPersistsBothTurns(t *testing.T) {
	db := openTestDB(t)
	gw := &fakeGateway{replies: []string{`{}`, "Hi there!"}}
	p := newTestPipeline(t, db, gw, &stubImager{})

	resp, err := p.Respond(context.Background(), Request{SessionID: "s1", Message: "Hello"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if resp.AssistantReply != "Hi there!" {
		t.Fatalf("unexpected reply: %q", resp.AssistantReply)
	}
	if gw.chatCalls != 2 {
		t.Fatalf("expected classify + generate, got %d calls", gw.chatCalls)
	}

	msgs := storedMessages(t, db)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "Hello" {
		t.Fatalf("unexpected user row: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Hi there!" {
		t.Fatalf("unexpected assistant row: %+v", msgs[1])
	}
}

func TestRespond_ImageGenerationSkipsChatGeneration(t *testing.T) {
	db := openTestDB(t)
	gw := &fakeGateway{replies: []string{`{"image_generation": true, "image_prompt": "a flag"}`}}
	imager := &stubImager{url: "https://img.example/flag.png"}
	p := newTestPipeline(t, db, gw, imager)

	resp, err := p.Respond(context.Background(), Request{SessionID: "s1", Message: "Create an image of a flag"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(resp.AssistantReply, "![Generated Image](https://img.example/flag.png)") {
		t.Fatalf("expected markdown image reference, got %q", resp.AssistantReply)
	}
	if gw.chatCalls != 1 {
		t.Fatalf("chat generation must not run for image turns; got %d calls", gw.chatCalls)
	}
	if imager.calls != 1 {
		t.Fatalf("expected one image call, got %d", imager.calls)
	}

	// terminal image turns persist the assistant message only
	msgs := storedMessages(t, db)
	if len(msgs) != 1 || msgs[0].Role != "assistant" {
		t.Fatalf("expected a single assistant row, got %+v", msgs)
	}
}

func TestRespond_RandomNumberBypassesGeneration(t *testing.T) {
	db := openTestDB(t)
	gw := &fakeGateway{replies: []string{`{"rand_num": [1, 10]}`}}
	p := newTestPipeline(t, db, gw, &stubImager{})

	resp, err := p.Respond(context.Background(), Request{SessionID: "s1", Message: "Give me a number between 1 and 10"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}

	pattern := regexp.MustCompile(`^Your random number between 1 and 10 is ([1-9]|10)\.$`)
	if !pattern.MatchString(resp.AssistantReply) {
		t.Fatalf("unexpected reply: %q", resp.AssistantReply)
	}
	if gw.chatCalls != 1 {
		t.Fatalf("expected only the classification call, got %d", gw.chatCalls)
	}

	msgs := storedMessages(t, db)
	if len(msgs) != 2 {
		t.Fatalf("expected user + assistant rows, got %d", len(msgs))
	}
}

func TestStatusMessage_SearchWinsWhenSeveralFlagsSet(t *testing.T) {
	got := statusMessage(Intent{InternetSearch: true, ImageGeneration: true})
	if got != "Searching the internet..." {
		t.Fatalf("unexpected status: %q", got)
	}

	got = statusMessage(Intent{ImageGeneration: true, CodeOrchestration: true})
	if got != "Creating the image..." {
		t.Fatalf("unexpected status: %q", got)
	}

	if got := statusMessage(DefaultIntent()); got != "Assistant is thinking..." {
		t.Fatalf("unexpected default status: %q", got)
	}
}

func TestRespond_GenerationFailureYieldsSentinelReply(t *testing.T) {
	db := openTestDB(t)
	gw := &fakeGateway{
		replies: []string{`{}`, ""},
		errs:    []error{nil, errors.New("backend down")},
	}
	p := newTestPipeline(t, db, gw, &stubImager{})

	resp, err := p.Respond(context.Background(), Request{SessionID: "s1", Message: "Hello"})
	if err != nil {
		t.Fatalf("respond should not fail on generation errors: %v", err)
	}
	if resp.AssistantReply != GenerationFailureReply {
		t.Fatalf("unexpected reply: %q", resp.AssistantReply)
	}

	msgs := storedMessages(t, db)
	if len(msgs) != 2 || msgs[1].Content != GenerationFailureReply {
		t.Fatalf("sentinel reply should be persisted, got %+v", msgs)
	}
}

func TestRespond_SupplementalContextReachesGeneration(t *testing.T) {
	db := openTestDB(t)
	registry := upload.NewRegistry(db)

	// the storage key doubles as the on-disk path in tests
	path := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(path, []byte("quarterly numbers"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := registry.Create(context.Background(), &upload.File{
		SessionID:        "s1",
		Filename:         path,
		OriginalFilename: "report.txt",
		FileURL:          "/uploads/report.txt",
		FileType:         "text/plain",
	}); err != nil {
		t.Fatalf("create upload row: %v", err)
	}

	gw := &fakeGateway{replies: []string{
		`{"file_orchestration": true, "file_ids": ["1"]}`,
		"Summary of your report.",
	}}
	p := newTestPipeline(t, db, gw, &stubImager{})

	resp, err := p.Respond(context.Background(), Request{SessionID: "s1", Message: "Summarize FILE:1"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if resp.AssistantReply != "Summary of your report." {
		t.Fatalf("unexpected reply: %q", resp.AssistantReply)
	}

	gen := gw.requests[1]
	found := false
	for _, m := range gen.Messages {
		if strings.Contains(m.Content, "quarterly numbers") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected file content in the generation prompt")
	}
	// supplemental context must sit right before the user turn
	last := gen.Messages[len(gen.Messages)-1]
	if last.Role != "user" {
		t.Fatalf("last prompt message should be the user turn, got %q", last.Role)
	}
	if !strings.Contains(gen.Messages[len(gen.Messages)-2].Content, "quarterly numbers") {
		t.Fatal("supplemental context should be adjacent to the user turn")
	}
}
