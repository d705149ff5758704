package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

type contact struct {
	ID    string  `yaml:"id"`
	Name  string  `yaml:"name"`
	Age   *int    `yaml:"age"`
	Phone *string `yaml:"phone"`
}

func (c contact) EntityID() string { return c.ID }

func (c contact) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// contactMigrations adds age and then phone. Both steps overwrite
// unconditionally, so re-running one would be visible.
func contactMigrations(calls *[]int) []Migration {
	return NewMigrationBuilder().
		AddEach("add age", func(r Record) (Record, error) {
			*calls = append(*calls, 1)
			r["age"] = nil
			return r, nil
		}).
		AddEach("add phone", func(r Record) (Record, error) {
			*calls = append(*calls, 2)
			r["phone"] = nil
			return r, nil
		}).
		Build()
}

func newContacts(t *testing.T, path string, calls *[]int) *Repository[contact] {
	t.Helper()
	var local []int
	if calls == nil {
		calls = &local
	}
	repo := New[contact](path, contactMigrations(calls), Options{Name: "contacts"})
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return repo
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readDocument(t *testing.T, path string) (int, []map[string]any) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	var doc struct {
		Version int              `yaml:"version"`
		Data    []map[string]any `yaml:"data"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("failed to parse %s: %v", path, err)
	}
	return doc.Version, doc.Data
}

func TestInitMigratesBareArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	writeFile(t, path, "- id: \"1\"\n  name: Alice\n- id: \"2\"\n  name: Bob\n")

	var calls []int
	repo := newContacts(t, path, &calls)

	items := repo.List()
	if len(items) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(items))
	}
	if items[0].ID != "1" || items[0].Name != "Alice" || items[1].ID != "2" || items[1].Name != "Bob" {
		t.Errorf("unexpected contacts: %+v", items)
	}
	for _, c := range items {
		if c.Age != nil || c.Phone != nil {
			t.Errorf("expected null age and phone on %s, got %+v", c.ID, c)
		}
	}
	if repo.Version() != 2 {
		t.Errorf("expected version 2, got %d", repo.Version())
	}

	version, data := readDocument(t, path)
	if version != 2 {
		t.Errorf("expected on-disk version 2, got %d", version)
	}
	if len(data) != 2 {
		t.Fatalf("expected 2 records on disk, got %d", len(data))
	}
	for _, rec := range data {
		for _, key := range []string{"age", "phone"} {
			v, ok := rec[key]
			if !ok || v != nil {
				t.Errorf("expected %s: null in %v", key, rec)
			}
		}
	}
	// Two records through two steps.
	if len(calls) != 4 {
		t.Errorf("expected 4 migration calls, got %v", calls)
	}
}

func TestInitBootstrapsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "contacts.yaml")

	var calls []int
	repo := newContacts(t, path, &calls)

	if n := len(repo.List()); n != 0 {
		t.Errorf("expected empty repository, got %d", n)
	}
	if len(calls) != 0 {
		t.Errorf("expected no migrations to run, got %v", calls)
	}

	version, data := readDocument(t, path)
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
	if len(data) != 0 {
		t.Errorf("expected empty data sequence, got %v", data)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "data: []") {
		t.Errorf("expected explicit empty sequence, got:\n%s", raw)
	}
}

func TestInitRunsOnlyPendingMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	writeFile(t, path, "version: 1\ndata:\n  - id: \"1\"\n    name: Alice\n    age: 30\n")

	var calls []int
	repo := newContacts(t, path, &calls)

	if len(calls) != 1 || calls[0] != 2 {
		t.Fatalf("expected only migration 2 to run, got %v", calls)
	}
	c, ok := repo.Get("1")
	if !ok {
		t.Fatal("contact 1 not found")
	}
	if c.Age == nil || *c.Age != 30 {
		t.Errorf("expected age 30 to survive, got %v", c.Age)
	}
	if c.Phone != nil {
		t.Errorf("expected null phone, got %v", *c.Phone)
	}

	version, data := readDocument(t, path)
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
	if len(data) != 1 || data[0]["age"] != 30 {
		t.Errorf("unexpected data on disk: %v", data)
	}
}

func TestReloadAfterMigrationIsStable(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bare array", "- id: a\n  name: Ann\n- id: b\n  name: Ben\n"},
		{"version 0 wrapper", "version: 0\ndata:\n  - id: a\n    name: Ann\n"},
		{"version 1 wrapper", "version: 1\ndata:\n  - id: a\n    name: Ann\n    age: 4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "contacts.yaml")
			writeFile(t, path, tt.content)

			first := newContacts(t, path, nil)
			firstRaw, _ := os.ReadFile(path)

			var calls []int
			second := newContacts(t, path, &calls)
			secondRaw, _ := os.ReadFile(path)

			if len(calls) != 0 {
				t.Errorf("expected no migrations on reload, got %v", calls)
			}
			if !bytes.Equal(firstRaw, secondRaw) {
				t.Errorf("document changed on reload:\n%s\nvs\n%s", firstRaw, secondRaw)
			}
			if first.Version() != 2 || second.Version() != 2 {
				t.Errorf("expected version 2 on both loads, got %d and %d", first.Version(), second.Version())
			}

			// A write after reload produces the same bytes when nothing changed.
			if err := second.Set(context.Background(), second.List()[0]); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			afterWrite, _ := os.ReadFile(path)
			if !bytes.Equal(firstRaw, afterWrite) {
				t.Errorf("rewrite changed document:\n%s\nvs\n%s", firstRaw, afterWrite)
			}
		})
	}
}

func TestSetPersistsEntity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	repo := newContacts(t, path, nil)
	ctx := context.Background()

	age := 41
	want := contact{ID: "c-1", Name: "Carol", Age: &age}
	if err := repo.Set(ctx, want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := repo.Get("c-1")
	if !ok || got.Name != "Carol" || got.Age == nil || *got.Age != 41 {
		t.Errorf("unexpected cached contact: %+v (found=%v)", got, ok)
	}

	reloaded := newContacts(t, path, nil)
	items := reloaded.List()
	if len(items) != 1 || items[0].ID != "c-1" || items[0].Name != "Carol" {
		t.Errorf("expected Carol exactly once after reload, got %+v", items)
	}
}

func TestSetSameIDReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	repo := newContacts(t, path, nil)
	ctx := context.Background()

	if err := repo.Set(ctx, contact{ID: "x", Name: "First"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := repo.Set(ctx, contact{ID: "y", Name: "Other"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := repo.Set(ctx, contact{ID: "x", Name: "Second"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	items := repo.List()
	if len(items) != 2 {
		t.Fatalf("expected 2 contacts, got %+v", items)
	}
	// Replacing keeps the original position.
	if items[0].ID != "x" || items[0].Name != "Second" {
		t.Errorf("expected x=Second first, got %+v", items[0])
	}

	_, data := readDocument(t, path)
	count := 0
	for _, rec := range data {
		if rec["id"] == "x" {
			count++
			if rec["name"] != "Second" {
				t.Errorf("expected second payload on disk, got %v", rec)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected id x exactly once on disk, got %d", count)
	}
}

func TestSetRejectsEmptyID(t *testing.T) {
	repo := newContacts(t, filepath.Join(t.TempDir(), "contacts.yaml"), nil)
	err := repo.Set(context.Background(), contact{Name: "Nobody"})
	if !errors.Is(err, ErrEmptyID) {
		t.Errorf("expected ErrEmptyID, got %v", err)
	}
	if repo.Len() != 0 {
		t.Errorf("expected cache untouched, got %d items", repo.Len())
	}
}

func TestRemoveAndReplaceAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	repo := newContacts(t, path, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Set(ctx, contact{ID: id, Name: strings.ToUpper(id)}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := repo.Remove(ctx, "b"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := repo.Remove(ctx, "missing"); err != nil {
		t.Fatalf("Remove of absent id failed: %v", err)
	}
	if ids := idsOf(repo.List()); ids != "a,c" {
		t.Errorf("expected a,c after remove, got %s", ids)
	}

	if err := repo.ReplaceAll(ctx, []contact{{ID: "z", Name: "Z"}, {ID: "a", Name: "A2"}}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	if ids := idsOf(repo.List()); ids != "z,a" {
		t.Errorf("expected z,a after replace, got %s", ids)
	}
	if ids := idsOf(newContacts(t, path, nil).List()); ids != "z,a" {
		t.Errorf("expected z,a on disk, got %s", ids)
	}

	err := repo.ReplaceAll(ctx, []contact{{ID: "d", Name: "D"}, {ID: "d", Name: "D"}})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
	if ids := idsOf(repo.List()); ids != "z,a" {
		t.Errorf("rejected ReplaceAll must not touch cache, got %s", ids)
	}
}

func TestCorruptDocumentFailsOpen(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"scalar", "42\n"},
		{"mapping without data", "version: 1\n"},
		{"mapping without version", "data: []\n"},
		{"data not a sequence", "version: 1\ndata: nope\n"},
		{"sequence of scalars", "- 1\n- 2\n"},
		{"not yaml", "[: ::\n"},
		{"empty file", ""},
		{"negative version", "version: -3\ndata: []\n"},
		{"duplicate ids", "version: 2\ndata:\n  - id: a\n    name: A\n  - id: a\n    name: B\n"},
		{"unknown field", "version: 2\ndata:\n  - id: a\n    name: A\n    shoeSize: 9\n"},
		{"fails validation", "version: 2\ndata:\n  - id: a\n"},
		{"missing id", "version: 2\ndata:\n  - name: A\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "contacts.yaml")
			writeFile(t, path, tt.content)

			repo := New[contact](path, contactMigrations(new([]int)), Options{})
			if err := repo.Init(context.Background()); err != nil {
				t.Fatalf("fail-open Init returned error: %v", err)
			}
			if n := len(repo.List()); n != 0 {
				t.Errorf("expected empty list, got %d", n)
			}

			raw, _ := os.ReadFile(path)
			if string(raw) != tt.content {
				t.Errorf("fail-open Init must leave the file alone, got:\n%s", raw)
			}

			// The next write recreates a well-formed document.
			if err := repo.Set(context.Background(), contact{ID: "new", Name: "N"}); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			version, data := readDocument(t, path)
			if version != 2 || len(data) != 1 {
				t.Errorf("expected fresh document, got version %d data %v", version, data)
			}
		})
	}
}

func TestFailFastReturnsLoadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	writeFile(t, path, "42\n")

	repo := New[contact](path, nil, Options{FailFast: true})
	err := repo.Init(context.Background())
	if !errors.Is(err, ErrCorruptDocument) {
		t.Errorf("expected ErrCorruptDocument, got %v", err)
	}
	if repo.Len() != 0 {
		t.Errorf("expected empty cache, got %d", repo.Len())
	}
}

func TestMigrationErrorFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	writeFile(t, path, "- id: a\n  name: A\n")

	chain := NewMigrationBuilder().
		Add("explode", func([]Record) ([]Record, error) { return nil, errors.New("boom") }).
		Build()

	repo := New[contact](path, chain, Options{})
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if repo.Len() != 0 {
		t.Errorf("expected empty cache after failed migration")
	}

	strict := New[contact](path, chain, Options{FailFast: true})
	if err := strict.Init(context.Background()); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected migration error, got %v", err)
	}
}

func TestNewerDocumentKeepsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	writeFile(t, path, "version: 7\ndata:\n  - id: a\n    name: A\n")

	var calls []int
	repo := newContacts(t, path, &calls)
	if len(calls) != 0 {
		t.Errorf("expected no migrations, got %v", calls)
	}
	if repo.Version() != 7 {
		t.Errorf("expected version 7, got %d", repo.Version())
	}
	if err := repo.Set(context.Background(), contact{ID: "b", Name: "B"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if version, _ := readDocument(t, path); version != 7 {
		t.Errorf("version went backwards to %d", version)
	}
}

func TestConcurrentSetsAllPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	repo := newContacts(t, path, nil)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.Set(ctx, contact{ID: fmt.Sprintf("id-%02d", i), Name: "N"})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if repo.Len() != n {
		t.Errorf("expected %d cached, got %d", n, repo.Len())
	}
	if _, data := readDocument(t, path); len(data) != n {
		t.Errorf("expected %d on disk, got %d", n, len(data))
	}
}

func TestReloadPicksUpOutsideEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	repo := newContacts(t, path, nil)
	ctx := context.Background()

	if err := repo.Set(ctx, contact{ID: "a", Name: "A"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	changed, err := repo.Reload(ctx)
	if err != nil || changed {
		t.Errorf("own write must not count as a change: changed=%v err=%v", changed, err)
	}

	writeFile(t, path, "- id: b\n  name: B\n")
	changed, err = repo.Reload(ctx)
	if err != nil || !changed {
		t.Fatalf("expected reload to change cache: changed=%v err=%v", changed, err)
	}
	if ids := idsOf(repo.List()); ids != "b" {
		t.Errorf("expected b after reload, got %s", ids)
	}
	if version, _ := readDocument(t, path); version != 2 {
		t.Errorf("expected migrated document after reload, got version %d", version)
	}

	writeFile(t, path, "42\n")
	if _, err := repo.Reload(ctx); !errors.Is(err, ErrCorruptDocument) {
		t.Errorf("expected ErrCorruptDocument, got %v", err)
	}
	if ids := idsOf(repo.List()); ids != "b" {
		t.Errorf("failed reload must keep cache, got %s", ids)
	}
}

func TestReloadKeepsWriteMadeDuringLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	ctx := context.Background()

	var repo *Repository[contact]
	armed := false
	chain := NewMigrationBuilder().
		AddEach("add age", func(r Record) (Record, error) {
			if armed {
				armed = false
				if err := repo.Set(ctx, contact{ID: "live", Name: "L"}); err != nil {
					return nil, err
				}
			}
			r["age"] = nil
			return r, nil
		}).
		Build()
	repo = New[contact](path, chain, Options{Name: "contacts"})
	if err := repo.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	writeFile(t, path, "- id: b\n  name: B\n")
	armed = true
	changed, err := repo.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if changed {
		t.Error("reload racing a write must not replace the cache")
	}
	if _, ok := repo.Get("live"); !ok {
		t.Fatal("write made during reload was dropped from the cache")
	}
	_, data := readDocument(t, path)
	if len(data) != 1 || data[0]["id"] != "live" {
		t.Errorf("expected live on disk, got %v", data)
	}
}

func TestInitReadErrorFailsOpen(t *testing.T) {
	// A directory in place of the document is an I/O error, not a missing file.
	path := t.TempDir()

	repo := New[contact](path, nil, Options{})
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if repo.Len() != 0 {
		t.Errorf("expected empty cache, got %d", repo.Len())
	}

	strict := New[contact](path, nil, Options{FailFast: true})
	if err := strict.Init(context.Background()); err == nil {
		t.Error("expected read error with FailFast")
	}
}

func TestPersistFailureKeepsCacheAhead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	repo := newContacts(t, path, nil)
	ctx := context.Background()

	if err := repo.Set(ctx, contact{ID: "a", Name: "A"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(path, "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := repo.Set(ctx, contact{ID: "b", Name: "B"}); err == nil {
		t.Fatal("expected Set to fail when the document cannot be written")
	}
	if ids := idsOf(repo.List()); ids != "a,b" {
		t.Errorf("expected cache a,b after failed persist, got %s", ids)
	}

	if err := os.RemoveAll(path); err != nil {
		t.Fatal(err)
	}
	if err := repo.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, data := readDocument(t, path); len(data) != 1 || data[0]["id"] != "b" {
		t.Errorf("next persist should write the cache, got %v", data)
	}
}

func idsOf(items []contact) string {
	ids := make([]string, 0, len(items))
	for _, c := range items {
		ids = append(ids, c.ID)
	}
	return strings.Join(ids, ",")
}
