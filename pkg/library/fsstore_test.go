package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/log"
)

func openTestStore(t *testing.T) *FSStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "qconsole-library-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := OpenFS(filepath.Join(tmpDir, "queries"), log.Discard())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return store
}

func TestFSStore_SaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, "customers.sql", "SELECT * FROM Customer", "All customers")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id != FileID(store.Dir(), "customers.sql") {
		t.Errorf("unexpected ID %s", id)
	}

	file, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if file.Contents != "SELECT * FROM Customer" {
		t.Errorf("unexpected contents %q", file.Contents)
	}
	if file.Description != "All customers" {
		t.Errorf("unexpected description %q", file.Description)
	}
	if file.Name != "customers.sql" {
		t.Errorf("unexpected name %q", file.Name)
	}
}

func TestFSStore_SaveOverwritesAndKeepsID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, _ := store.Save(ctx, "a.sql", "SELECT 1", "first")
	second, err := store.Save(ctx, "a.sql", "SELECT 2", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first != second {
		t.Errorf("expected stable ID, got %s and %s", first, second)
	}

	file, _ := store.Load(ctx, second)
	if file.Contents != "SELECT 2" || file.Description != "" {
		t.Errorf("unexpected file %+v contents=%q", file.FileInfo, file.Contents)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "a.sql"+DescExtension)); !os.IsNotExist(err) {
		t.Error("expected description sidecar to be removed")
	}
}

func TestFSStore_FindAndExists(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Save(ctx, "Orders.sql", "SELECT 1", "")

	found, err := store.Find(ctx, "Orders.sql")
	if err != nil || len(found) != 1 {
		t.Fatalf("expected one match, got %v, %v", found, err)
	}

	found, _ = store.Find(ctx, "orders.sql")
	if len(found) != 0 {
		t.Errorf("expected exact name match only, got %v", found)
	}

	exists, _ := store.Exists(ctx, "Orders.sql")
	if !exists {
		t.Error("expected Orders.sql to exist")
	}
	exists, _ = store.Exists(ctx, "nope.sql")
	if exists {
		t.Error("expected nope.sql not to exist")
	}
}

func TestFSStore_ListSeesExternalFiles(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	files := map[string]string{
		"b.sql":       "SELECT 2",
		"a.sql":       "SELECT 1",
		"notes.txt":   "ignored",
		".hidden.sql": "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(store.Dir(), name), []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	os.WriteFile(filepath.Join(store.Dir(), "a.sql.desc"), []byte("first query\n"), 0644)

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a.sql" || list[1].Name != "b.sql" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Description != "first query" {
		t.Errorf("unexpected description %q", list[0].Description)
	}
}

func TestFSStore_LoadUnknownID(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Load(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !qerrors.IsCode(err, qerrors.ErrCodeLibraryNotFound) {
		t.Fatalf("expected ErrCodeLibraryNotFound, got %v", err)
	}
}

func TestFSStore_SaveRejectsBadNames(t *testing.T) {
	store := openTestStore(t)

	for _, name := range []string{"", "../escape.sql", "dir/x.sql", "query.txt", `a\b.sql`} {
		if _, err := store.Save(context.Background(), name, "SELECT 1", ""); !qerrors.IsCode(err, qerrors.ErrCodeRequestInvalid) {
			t.Errorf("Save(%q): expected ErrCodeRequestInvalid, got %v", name, err)
		}
	}
}

func TestDisabled(t *testing.T) {
	var store Store = Disabled{}
	ctx := context.Background()

	if _, err := store.List(ctx); !qerrors.IsCode(err, qerrors.ErrCodeLibraryDisabled) {
		t.Errorf("List: expected ErrCodeLibraryDisabled, got %v", err)
	}
	if _, err := store.Save(ctx, "a.sql", "", ""); !qerrors.IsCode(err, qerrors.ErrCodeLibraryDisabled) {
		t.Errorf("Save: expected ErrCodeLibraryDisabled, got %v", err)
	}
}

func TestFileID_IsStable(t *testing.T) {
	a := FileID("/srv/sql", "x.sql")
	if a != FileID("/srv/sql", "x.sql") {
		t.Error("expected identical IDs for identical input")
	}
	if a == FileID("/srv/sql", "y.sql") || a == FileID("/srv/other", "x.sql") {
		t.Error("expected different IDs for different files")
	}
}

func TestMetaValue(t *testing.T) {
	meta := map[string]string{"X-Amz-Meta-Description": "from header"}
	if got := metaValue(meta, descriptionMeta); got != "from header" {
		t.Errorf("got %q", got)
	}
	if got := metaValue(map[string]string{"description": "plain"}, descriptionMeta); got != "plain" {
		t.Errorf("got %q", got)
	}
}
