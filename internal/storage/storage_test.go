package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	logx "clipflow/pkg/logx"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	mem, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = mem.Close()
		_ = sq.Close()
	})
	return map[string]Store{"memory": mem, "sqlite": sq}
}

func TestPutGetDelete(t *testing.T) {
	t.Parallel()
	for name, st := range openBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := st.Get(ctx, KeyspaceAssets, "a1"); err != nil || ok {
				t.Fatalf("empty get: ok=%v err=%v", ok, err)
			}

			if err := st.Put(ctx, KeyspaceAssets, "a1", []byte(`{"v":1}`)); err != nil {
				t.Fatalf("put: %v", err)
			}
			v, ok, err := st.Get(ctx, KeyspaceAssets, "a1")
			if err != nil || !ok || string(v) != `{"v":1}` {
				t.Fatalf("get: %q ok=%v err=%v", v, ok, err)
			}

			// Overwrite in place.
			if err := st.Put(ctx, KeyspaceAssets, "a1", []byte(`{"v":2}`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			v, _, _ = st.Get(ctx, KeyspaceAssets, "a1")
			if string(v) != `{"v":2}` {
				t.Fatalf("after overwrite: %q", v)
			}

			existed, err := st.Delete(ctx, KeyspaceAssets, "a1")
			if err != nil || !existed {
				t.Fatalf("delete: existed=%v err=%v", existed, err)
			}
			if existed, _ := st.Delete(ctx, KeyspaceAssets, "a1"); existed {
				t.Fatal("second delete should report false")
			}
		})
	}
}

func TestKeyspacesAreIsolated(t *testing.T) {
	t.Parallel()
	for name, st := range openBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = st.Put(ctx, KeyspaceAssets, "x", []byte("asset"))
			_ = st.Put(ctx, KeyspaceSchedules, "x", []byte("schedule"))

			v, _, _ := st.Get(ctx, KeyspaceAssets, "x")
			if string(v) != "asset" {
				t.Fatalf("assets keyspace: %q", v)
			}
			v, _, _ = st.Get(ctx, KeyspaceSchedules, "x")
			if string(v) != "schedule" {
				t.Fatalf("schedules keyspace: %q", v)
			}

			if _, err := st.Delete(ctx, KeyspaceAssets, "x"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := st.Get(ctx, KeyspaceSchedules, "x"); !ok {
				t.Fatal("delete leaked across keyspaces")
			}
		})
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	t.Parallel()
	for name, st := range openBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				id := fmt.Sprintf("id-%d", i)
				if err := st.Put(ctx, KeyspaceSchedules, id, []byte(id)); err != nil {
					t.Fatalf("put %d: %v", i, err)
				}
			}
			// Overwriting must not reorder.
			if err := st.Put(ctx, KeyspaceSchedules, "id-0", []byte("id-0")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			got, err := st.List(ctx, KeyspaceSchedules)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 5 {
				t.Fatalf("len = %d", len(got))
			}
			for i, v := range got {
				if want := fmt.Sprintf("id-%d", i); string(v) != want {
					t.Fatalf("position %d: %q, want %q", i, v, want)
				}
			}
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestKeyMutexSerializesPerID(t *testing.T) {
	t.Parallel()
	km := NewKeyMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}

func TestKeyMutexIndependentIDs(t *testing.T) {
	t.Parallel()
	km := NewKeyMutex()

	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		defer close(done)
		km.Lock("b")()
	}()
	<-done // must not block on a different id
	unlockA()
}
