package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/richinex/biotools/model"
)

// handleStores returns every HandleStore implementation under test.
func handleStores(t *testing.T) map[string]HandleStore {
	t.Helper()

	sqlite, err := NewSqliteHandleStoreInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]HandleStore{
		"memory": NewMemoryHandleStore(),
		"sqlite": sqlite,
	}
}

func TestHandleStorePutAndGet(t *testing.T) {
	for name, store := range handleStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			h := model.DatabaseHandle{
				Name:        "swissprot",
				LocalPath:   "/data/blastdb/swissprot",
				Present:     true,
				State:       model.StatePresent,
				LastChecked: checked,
				Downloads:   1,
			}
			if err := store.Put(ctx, h); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			got, ok, err := store.Get(ctx, "swissprot")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !ok {
				t.Fatal("expected handle to be found")
			}
			if got.LocalPath != h.LocalPath || !got.Present || got.State != model.StatePresent || got.Downloads != 1 {
				t.Errorf("unexpected handle: %+v", got)
			}
			if !got.LastChecked.Equal(checked) {
				t.Errorf("expected last checked %v, got %v", checked, got.LastChecked)
			}
		})
	}
}

func TestHandleStoreGetMissing(t *testing.T) {
	for name, store := range handleStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(context.Background(), "nr")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if ok {
				t.Error("expected missing handle")
			}
		})
	}
}

func TestHandleStorePutOverwrites(t *testing.T) {
	for name, store := range handleStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			store.Put(ctx, model.DatabaseHandle{Name: "nr", State: model.StateDownloading, LastChecked: time.Now()})
			store.Put(ctx, model.DatabaseHandle{Name: "nr", State: model.StateDownloadFailed, LastError: "exit status 2", LastChecked: time.Now()})

			got, _, err := store.Get(ctx, "nr")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.State != model.StateDownloadFailed || got.LastError != "exit status 2" {
				t.Errorf("expected overwritten handle, got %+v", got)
			}

			all, err := store.List(ctx, "")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(all) != 1 {
				t.Errorf("expected 1 handle, got %d", len(all))
			}
		})
	}
}

func TestHandleStoreListByPrefix(t *testing.T) {
	for name, store := range handleStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, n := range []string{"swissprot", "nr", "refseq_protein", "refseq_select_prot"} {
				if err := store.Put(ctx, model.DatabaseHandle{Name: n, State: model.StateUnknown, LastChecked: time.Now()}); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			all, err := store.List(ctx, "")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			want := []string{"nr", "refseq_protein", "refseq_select_prot", "swissprot"}
			if len(all) != len(want) {
				t.Fatalf("expected %d handles, got %d", len(want), len(all))
			}
			for i, n := range want {
				if all[i].Name != n {
					t.Errorf("position %d: expected %s, got %s", i, n, all[i].Name)
				}
			}

			refseq, err := store.List(ctx, "refseq")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(refseq) != 2 {
				t.Errorf("expected 2 refseq handles, got %d", len(refseq))
			}

			none, err := store.List(ctx, "pdb")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if none == nil || len(none) != 0 {
				t.Errorf("expected empty non-nil slice, got %v", none)
			}
		})
	}
}

func TestHandleStoreConcurrentPuts(t *testing.T) {
	for name, store := range handleStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					store.Put(ctx, model.DatabaseHandle{Name: "nr", Downloads: i, State: model.StateChecking, LastChecked: time.Now()})
					store.Get(ctx, "nr")
				}(i)
			}
			wg.Wait()

			if _, ok, _ := store.Get(ctx, "nr"); !ok {
				t.Error("expected handle after concurrent puts")
			}
		})
	}
}
