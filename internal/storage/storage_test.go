package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	logx "isthisai/pkg/logx"
)

// drivers covered by the contract tests. The redis driver shares the same
// contract but needs a live instance, so it is exercised in integration only.
var testDrivers = []string{"sqlite", "file"}

func testConfig(t *testing.T, driver string) Config {
	t.Helper()
	return Config{
		Driver: driver,
		Path:   filepath.Join(t.TempDir(), "state.db"),
	}
}

func mustOpen(t *testing.T, cfg Config) Store {
	t.Helper()
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s) = %v", cfg.Driver, err)
	}
	return st
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range testDrivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := mustOpen(t, testConfig(t, driver))
			defer st.Close()

			got, err := st.Cursor(ctx)
			if err != nil || got != "" {
				t.Fatalf("Cursor() on fresh store = %q, %v; want \"\", nil", got, err)
			}

			if err := st.SetCursor(ctx, "t1_abc"); err != nil {
				t.Fatalf("SetCursor: %v", err)
			}
			if got, _ = st.Cursor(ctx); got != "t1_abc" {
				t.Fatalf("Cursor() = %q, want t1_abc", got)
			}

			// Cursor is an upsert, not an insert.
			if err := st.SetCursor(ctx, "t1_def"); err != nil {
				t.Fatalf("SetCursor overwrite: %v", err)
			}
			if got, _ = st.Cursor(ctx); got != "t1_def" {
				t.Fatalf("Cursor() after overwrite = %q, want t1_def", got)
			}
		})
	}
}

func TestLedgerMarkIsIdempotent(t *testing.T) {
	t.Parallel()
	for _, driver := range testDrivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := mustOpen(t, testConfig(t, driver))
			defer st.Close()

			ok, err := st.HasProcessed(ctx, "c1")
			if err != nil || ok {
				t.Fatalf("HasProcessed(c1) on fresh store = %v, %v; want false, nil", ok, err)
			}

			if err := st.MarkProcessed(ctx, "c1"); err != nil {
				t.Fatalf("MarkProcessed: %v", err)
			}
			if err := st.MarkProcessed(ctx, "c1"); err != nil {
				t.Fatalf("MarkProcessed twice: %v", err)
			}
			if ok, _ = st.HasProcessed(ctx, "c1"); !ok {
				t.Fatal("HasProcessed(c1) = false after mark")
			}
			if ok, _ = st.HasProcessed(ctx, "c2"); ok {
				t.Fatal("HasProcessed(c2) = true, never marked")
			}
		})
	}
}

func TestReopenPreservesState(t *testing.T) {
	t.Parallel()
	for _, driver := range testDrivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			cfg := testConfig(t, driver)

			st := mustOpen(t, cfg)
			if err := st.SetCursor(ctx, "t1_xyz"); err != nil {
				t.Fatalf("SetCursor: %v", err)
			}
			for _, id := range []string{"a", "b", "c"} {
				if err := st.MarkProcessed(ctx, id); err != nil {
					t.Fatalf("MarkProcessed(%s): %v", id, err)
				}
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			st = mustOpen(t, cfg)
			defer st.Close()
			if got, _ := st.Cursor(ctx); got != "t1_xyz" {
				t.Fatalf("Cursor() after reopen = %q, want t1_xyz", got)
			}
			for _, id := range []string{"a", "b", "c"} {
				if ok, _ := st.HasProcessed(ctx, id); !ok {
					t.Fatalf("HasProcessed(%s) = false after reopen", id)
				}
			}
			if ok, _ := st.HasProcessed(ctx, "d"); ok {
				t.Fatal("HasProcessed(d) = true after reopen, never marked")
			}
		})
	}
}

func TestFileDriverCompaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := testConfig(t, "file")

	st := mustOpen(t, cfg)
	if err := st.SetCursor(ctx, "t1_last"); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	// Push well past the compaction threshold so snapshot + journal replay
	// both contribute on reopen.
	n := compactEvery + 100
	for i := 0; i < n; i++ {
		if err := st.MarkProcessed(ctx, fmt.Sprintf("c%04d", i)); err != nil {
			t.Fatalf("MarkProcessed(%d): %v", i, err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st = mustOpen(t, cfg)
	defer st.Close()
	if got, _ := st.Cursor(ctx); got != "t1_last" {
		t.Fatalf("Cursor() after compaction reopen = %q, want t1_last", got)
	}
	for _, i := range []int{0, compactEvery - 1, compactEvery, n - 1} {
		if ok, _ := st.HasProcessed(ctx, fmt.Sprintf("c%04d", i)); !ok {
			t.Fatalf("HasProcessed(c%04d) = false after compaction reopen", i)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("Open(etcd) = nil error, want unknown driver error")
	}
}
