package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// single connection: shared-cache sqlite returns busy errors under
	// concurrent writers
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&Conversation{}, &Message{}, &Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestGetOrCreate_CreatesOnce(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	first, err := repo.GetOrCreate(context.Background(), "session-a")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if first.Title != DefaultTitle {
		t.Fatalf("unexpected title: %q", first.Title)
	}

	second, err := repo.GetOrCreate(context.Background(), "session-a")
	if err != nil {
		t.Fatalf("get or create again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same conversation, got %d and %d", first.ID, second.ID)
	}

	var count int64
	if err := db.Model(&Conversation{}).Where("session_id = ?", "session-a").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 conversation, got %d", count)
	}
}

func TestGetOrCreate_ConcurrentFirstRequests(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetOrCreate(context.Background(), "session-race"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("get or create: %v", err)
	}

	var count int64
	if err := db.Model(&Conversation{}).Where("session_id = ?", "session-race").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 conversation, got %d", count)
	}
}

func TestAppendMessage_PreservesTurnOrder(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	conv, err := repo.GetOrCreate(context.Background(), "session-b")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}

	if _, err := repo.AppendMessage(context.Background(), conv.ID, "user", "hello"); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if _, err := repo.AppendMessage(context.Background(), conv.ID, "assistant", "hi"); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	msgs, err := repo.RecentMessages(context.Background(), conv.ID, 20)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("unexpected order: %q then %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestRecentMessages_CapsWindow(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	conv, err := repo.GetOrCreate(context.Background(), "session-c")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}

	for i := 0; i < 25; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if _, err := repo.AppendMessage(context.Background(), conv.ID, role, "seed"); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	msgs, err := repo.RecentMessages(context.Background(), conv.ID, 20)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(msgs))
	}
	// chronological order: newest last
	if msgs[len(msgs)-1].ID <= msgs[0].ID {
		t.Fatalf("expected ascending ids, got first=%d last=%d", msgs[0].ID, msgs[len(msgs)-1].ID)
	}
}
