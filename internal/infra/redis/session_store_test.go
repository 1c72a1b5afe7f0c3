package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-commit-service/internal/app"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute, "node-a")

	session := app.NewSession("s-1", sampleQuiz(), nil, app.SessionOptions{})
	defer session.Close()
	store.Put(session)

	if !mr.Exists("quiz:session:s-1") {
		t.Fatalf("expected redis key to be set")
	}
	if got := mr.HGet("quiz:session:s-1", "quiz_id"); got != "quiz-1" {
		t.Fatalf("expected quiz id marker, got %q", got)
	}
	if got := mr.HGet("quiz:session:s-1", "owner"); got != "node-a" {
		t.Fatalf("expected owner marker, got %q", got)
	}
	if _, ok := store.Get("s-1"); !ok {
		t.Fatalf("expected local session")
	}

	mr.FastForward(30 * time.Second)
	if err := store.Touch(context.Background(), "s-1"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if ttl := mr.TTL("quiz:session:s-1"); ttl != time.Minute {
		t.Fatalf("expected ttl refreshed to 1m, got %s", ttl)
	}

	store.Delete("s-1")
	if mr.Exists("quiz:session:s-1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("s-1"); ok {
		t.Fatalf("expected local session removed")
	}
}
