package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

func TestLocalStore_PutAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	ctx := context.Background()
	data := []byte(`{"issue_id":"x"}`)
	if err := store.Put(ctx, "disabled/x.json", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "disabled", "x.json")); err != nil {
		t.Fatalf("expected nested file on disk: %v", err)
	}

	got, err := store.Get(ctx, "disabled/x.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestLocalStore_GetNotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	_, err = store.Get(context.Background(), "disabled/missing.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get non-existent: got err=%v, want ErrNotFound", err)
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	for _, key := range []string{"", "..", "../outside.json", "/etc/passwd"} {
		if err := store.Put(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("Put(%q): expected error", key)
		}
	}
}

func TestLocalStore_Overwrite(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	_ = store.Put(ctx, "k.json", []byte("first"))
	if err := store.Put(ctx, "k.json", []byte("second")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _ := store.Get(ctx, "k.json")
	if string(got) != "second" {
		t.Errorf("Get = %q, want second", got)
	}
}

func TestLocalStore_ConcurrentAccess(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	ctx := context.Background()
	const n = 50
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := "disabled/issue-" + strconv.Itoa(id) + ".json"
			if err := store.Put(ctx, key, []byte("data-"+strconv.Itoa(id))); err != nil {
				t.Errorf("concurrent Put(%s): %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		key := "disabled/issue-" + strconv.Itoa(i) + ".json"
		got, err := store.Get(ctx, key)
		if err != nil {
			t.Errorf("Get(%s): %v", key, err)
			continue
		}
		if string(got) != "data-"+strconv.Itoa(i) {
			t.Errorf("Get(%s) = %q", key, got)
		}
	}
}
