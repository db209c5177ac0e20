package redisfetch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local redis and skips the test when none is
// available. Integration tests use testcontainers-go instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNew_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("New should panic with nil redis client")
		}
	}()
	New(nil, "users:", zerolog.Nop())
}

func TestEntry_MarshalJSON(t *testing.T) {
	e := Entry{Key: "homer", Value: json.RawMessage(`{"username":"homer","age":42}`)}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"username":"homer","age":42}` {
		t.Errorf("Marshal() = %s", data)
	}
	if KeyOf(e) != "homer" {
		t.Errorf("KeyOf() = %q, want homer", KeyOf(e))
	}
}

func TestSource_Fetch(t *testing.T) {
	client := setupTestRedis(t)
	source := New(client, "users:", zerolog.Nop())
	ctx := context.Background()

	if err := source.Put(ctx, "homer", json.RawMessage(`{"username":"homer","age":42}`), time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := source.Put(ctx, "marge", json.RawMessage(`{"username":"marge","age":36}`), 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	client.Set(ctx, "users:broken", "not json", 0)

	resp, err := source.Fetch(ctx, []string{"homer", "bart", "marge", "broken"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	entries := resp.List()
	if len(entries) != 2 {
		t.Fatalf("Fetch() returned %d entries, want 2", len(entries))
	}
	if entries[0].Key != "homer" || entries[1].Key != "marge" {
		t.Errorf("Keys = %q, %q", entries[0].Key, entries[1].Key)
	}
}

func TestSource_PutInvalid(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	source := New(client, "users:", zerolog.Nop())
	if err := source.Put(context.Background(), "homer", json.RawMessage(`{`), 0); err == nil {
		t.Error("Put() should reject invalid json")
	}
}
