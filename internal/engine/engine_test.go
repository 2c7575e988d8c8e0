package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/clipd-io/clipd/internal/clip"
	"github.com/clipd-io/clipd/internal/store"
)

// memStore is an in-memory Store for exercising the engine without a
// database. putErr / delErr force failure paths.
type memStore struct {
	mu     sync.Mutex
	clips  map[string]*clip.Clip
	putErr error
	delErr error
}

func newMemStore() *memStore {
	return &memStore{clips: make(map[string]*clip.Clip)}
}

func (m *memStore) Get(ctx context.Context, id string) (*clip.Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clips[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

func (m *memStore) GetAll(ctx context.Context) ([]*clip.Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*clip.Clip, 0, len(m.clips))
	for _, c := range m.clips {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (m *memStore) Put(ctx context.Context, c *clip.Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.clips[c.ID] = c.Clone()
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.clips, id)
	return nil
}

func (m *memStore) GetByType(ctx context.Context, typ string) ([]*clip.Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*clip.Clip
	for _, c := range m.clips {
		if c.Type == typ {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (m *memStore) GetPinned(ctx context.Context) ([]*clip.Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*clip.Clip
	for _, c := range m.clips {
		if c.Pinned {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clips)
}

// recorder captures outbound notifications.
type recorder struct {
	mu      sync.Mutex
	created []string
	updated []string
	deleted []string
}

func (r *recorder) EnqueueCreated(c *clip.Clip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, c.ID)
}

func (r *recorder) EnqueueUpdated(c *clip.Clip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, c.ID)
}

func (r *recorder) EnqueueDeleted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *memStore, *recorder) {
	t.Helper()
	st := newMemStore()
	rec := &recorder{}
	cfg := quietConfig()
	cfg.Outbound = rec
	eng, err := New(st, cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return eng, st, rec
}

func TestAddLocalAutomatic(t *testing.T) {
	eng, st, rec := newTestEngine(t)
	ctx := context.Background()

	c, err := eng.AddLocal(ctx, "hello world", AddOptions{Source: "clipboard"})
	if err != nil {
		t.Fatalf("AddLocal() error: %v", err)
	}
	if c == nil {
		t.Fatal("AddLocal() returned nil clip")
	}
	if c.Type != "text" {
		t.Errorf("Type = %q, want %q", c.Type, "text")
	}
	if c.CopyCount != 1 {
		t.Errorf("CopyCount = %d, want 1", c.CopyCount)
	}
	if c.SyncState != clip.SyncPending {
		t.Errorf("SyncState = %q, want %q", c.SyncState, clip.SyncPending)
	}
	if c.LocalID != c.ID {
		t.Errorf("LocalID = %q, want %q", c.LocalID, c.ID)
	}
	if st.len() != 1 {
		t.Errorf("store has %d clips, want 1", st.len())
	}
	if len(rec.created) != 1 || rec.created[0] != c.ID {
		t.Errorf("created notifications = %v, want [%s]", rec.created, c.ID)
	}
}

func TestAddLocalDuplicateMerges(t *testing.T) {
	eng, st, rec := newTestEngine(t)
	ctx := context.Background()

	var dupCount int
	eng.config.OnDuplicate = func(count int, c *clip.Clip) { dupCount = count }

	first, err := eng.AddLocal(ctx, "same content", AddOptions{})
	if err != nil {
		t.Fatalf("first AddLocal() error: %v", err)
	}

	second, err := eng.AddLocal(ctx, "same content", AddOptions{})
	if err != nil {
		t.Fatalf("second AddLocal() error: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("duplicate created new record %s, want merge into %s", second.ID, first.ID)
	}
	if second.CopyCount != 2 {
		t.Errorf("CopyCount = %d, want 2", second.CopyCount)
	}
	if !second.CreatedAt.After(first.CreatedAt) && !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt not refreshed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if eng.Len() != 1 {
		t.Errorf("Len() = %d, want 1", eng.Len())
	}
	if st.len() != 1 {
		t.Errorf("store has %d clips, want 1", st.len())
	}
	if dupCount != 2 {
		t.Errorf("OnDuplicate count = %d, want 2", dupCount)
	}
	if len(rec.updated) != 1 {
		t.Errorf("updated notifications = %v, want one", rec.updated)
	}
}

func TestAddLocalManualDuplicateCreatesNew(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	first, _ := eng.AddLocal(ctx, "same content", AddOptions{})
	second, err := eng.AddLocal(ctx, "same content", AddOptions{Manual: true})
	if err != nil {
		t.Fatalf("manual AddLocal() error: %v", err)
	}
	if second.ID == first.ID {
		t.Error("manual add merged into existing record, want a new one")
	}
	if eng.Len() != 2 {
		t.Errorf("Len() = %d, want 2", eng.Len())
	}
}

func TestDuplicateClaimPassesToSurvivor(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.AddLocal(ctx, "shared snippet", AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.AddLocal(ctx, "shared snippet", AddOptions{Manual: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := eng.Delete(ctx, first.ID); err != nil {
		t.Fatal(err)
	}

	// Re-capture must merge into the surviving duplicate, not create a
	// third record
	bumped, err := eng.AddLocal(ctx, "shared snippet", AddOptions{})
	if err != nil {
		t.Fatalf("AddLocal() error: %v", err)
	}
	if bumped.ID != second.ID {
		t.Errorf("recapture created %s, want merge into surviving %s", bumped.ID, second.ID)
	}
	if bumped.CopyCount != 2 {
		t.Errorf("CopyCount = %d, want 2", bumped.CopyCount)
	}
	if eng.Len() != 1 {
		t.Errorf("Len() = %d, want 1", eng.Len())
	}
}

func TestStaleDuplicateIndexEntryDropped(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	// An index entry pointing at a record the list no longer holds
	eng.dupes.add("ghost content", "missing-id")

	_, err := eng.AddLocal(ctx, "ghost content", AddOptions{})
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want PersistenceError", err)
	}

	// The stale entry is gone, so the next capture creates a record
	c, err := eng.AddLocal(ctx, "ghost content", AddOptions{})
	if err != nil {
		t.Fatalf("AddLocal() after stale entry error: %v", err)
	}
	if c == nil || c.ID == "missing-id" {
		t.Errorf("capture after stale entry = %v, want a fresh record", c)
	}
}

func TestAddLocalIncognito(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	eng.SetIncognito(true)

	c, err := eng.AddLocal(ctx, "secret stuff", AddOptions{})
	if err != nil {
		t.Fatalf("AddLocal() error: %v", err)
	}
	if c != nil {
		t.Error("automatic capture went through in incognito mode")
	}
	if eng.Len() != 0 {
		t.Errorf("Len() = %d, want 0", eng.Len())
	}

	// Manual creation is never suppressed
	c, err = eng.AddLocal(ctx, "explicit", AddOptions{Manual: true})
	if err != nil {
		t.Fatalf("manual AddLocal() error: %v", err)
	}
	if c == nil {
		t.Error("manual add suppressed in incognito mode")
	}

	eng.SetIncognito(false)
	c, _ = eng.AddLocal(ctx, "back to normal", AddOptions{})
	if c == nil {
		t.Error("capture still suppressed after incognito off")
	}
}

func TestAddLocalGate(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	c, err := eng.AddLocal(ctx, "x", AddOptions{})
	if err != nil {
		t.Fatalf("AddLocal() error: %v", err)
	}
	if c != nil {
		t.Error("single character captured, want gate rejection")
	}
}

func TestAddLocalManualEmpty(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.AddLocal(context.Background(), "", AddOptions{Manual: true})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestAddLocalPersistenceFailure(t *testing.T) {
	eng, st, rec := newTestEngine(t)
	ctx := context.Background()

	st.putErr = fmt.Errorf("disk full")

	_, err := eng.AddLocal(ctx, "will not stick", AddOptions{})
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want PersistenceError", err)
	}
	if eng.Len() != 0 {
		t.Errorf("Len() = %d after failed persist, want 0", eng.Len())
	}
	if len(rec.created) != 0 {
		t.Errorf("notifications sent for failed persist: %v", rec.created)
	}
}

func TestNewLoadsExisting(t *testing.T) {
	st := newMemStore()
	seed := &clip.Clip{ID: "c1", Content: "persisted earlier"}
	seed.SetDefaults()
	if err := st.Put(context.Background(), seed); err != nil {
		t.Fatal(err)
	}

	eng, err := New(st, quietConfig())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if eng.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", eng.Len())
	}

	// Loaded records participate in duplicate detection
	c, err := eng.AddLocal(context.Background(), "persisted earlier", AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != "c1" || c.CopyCount != 2 {
		t.Errorf("recapture = (%s, %d), want merge into c1 with count 2", c.ID, c.CopyCount)
	}
}

func TestApplyRemoteCreated(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	rec := &clip.Clip{ID: "srv-1", Content: "from another device", Type: "text"}
	rec.SetDefaults()

	if err := eng.ApplyRemoteCreated(ctx, rec); err != nil {
		t.Fatalf("ApplyRemoteCreated() error: %v", err)
	}

	got, err := eng.Get("srv-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.SyncState != clip.SyncAcked {
		t.Errorf("SyncState = %q, want %q", got.SyncState, clip.SyncAcked)
	}

	// Idempotent: re-applying the same event changes nothing
	if err := eng.ApplyRemoteCreated(ctx, rec); err != nil {
		t.Fatalf("second ApplyRemoteCreated() error: %v", err)
	}
	if eng.Len() != 1 {
		t.Errorf("Len() = %d after duplicate event, want 1", eng.Len())
	}
	if st.len() != 1 {
		t.Errorf("store has %d clips, want 1", st.len())
	}
}

func TestApplyRemoteCreatedRemapsLocalID(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	local, err := eng.AddLocal(ctx, "typed here", AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Select(local.ID); err != nil {
		t.Fatal(err)
	}

	// The backend echoes our id as local_id with its canonical id
	echo := local.Clone()
	echo.ID = "srv-42"
	echo.LocalID = local.ID

	if err := eng.ApplyRemoteCreated(ctx, echo); err != nil {
		t.Fatalf("ApplyRemoteCreated() error: %v", err)
	}

	if eng.Len() != 1 {
		t.Fatalf("Len() = %d after remap, want 1", eng.Len())
	}
	if _, err := eng.Get(local.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old id still resolves after remap")
	}
	got, err := eng.Get("srv-42")
	if err != nil {
		t.Fatalf("server id not found after remap: %v", err)
	}
	if got.SyncState != clip.SyncAcked {
		t.Errorf("SyncState = %q, want %q", got.SyncState, clip.SyncAcked)
	}

	// Selection follows the rename
	sel := eng.Selected()
	if sel == nil || sel.ID != "srv-42" {
		t.Errorf("Selected() = %v, want srv-42", sel)
	}

	// The old row is gone from the store
	if _, err := st.Get(ctx, local.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("old row still in store after remap")
	}

	// Duplicate detection now points at the server id
	bumped, err := eng.AddLocal(ctx, "typed here", AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if bumped.ID != "srv-42" {
		t.Errorf("recapture bumped %s, want srv-42", bumped.ID)
	}
}

func TestApplyRemoteUpdated(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	base := &clip.Clip{ID: "srv-1", Content: "original", Type: "code"}
	base.SetDefaults()
	if err := eng.ApplyRemoteCreated(ctx, base); err != nil {
		t.Fatal(err)
	}

	upd := base.Clone()
	upd.Content = "edited elsewhere"
	upd.Type = "text" // must not take effect
	upd.Pinned = true
	upd.Tags = []string{"shared"}

	if err := eng.ApplyRemoteUpdated(ctx, upd); err != nil {
		t.Fatalf("ApplyRemoteUpdated() error: %v", err)
	}

	got, _ := eng.Get("srv-1")
	if got.Content != "edited elsewhere" {
		t.Errorf("Content = %q, want %q", got.Content, "edited elsewhere")
	}
	if got.Type != "code" {
		t.Errorf("Type = %q, want %q (type never mutated by sync)", got.Type, "code")
	}
	if !got.Pinned || !got.HasTag("shared") {
		t.Errorf("metadata not replaced: pinned=%v tags=%v", got.Pinned, got.Tags)
	}

	// The dupe index follows the content change
	bumped, err := eng.AddLocal(ctx, "edited elsewhere", AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if bumped.ID != "srv-1" {
		t.Errorf("recapture of new content bumped %s, want srv-1", bumped.ID)
	}
}

func TestApplyRemoteUpdatedUnknownIDCreates(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	upd := &clip.Clip{ID: "srv-9", Content: "missed the create", Type: "text"}
	upd.SetDefaults()

	if err := eng.ApplyRemoteUpdated(context.Background(), upd); err != nil {
		t.Fatalf("ApplyRemoteUpdated() error: %v", err)
	}
	if _, err := eng.Get("srv-9"); err != nil {
		t.Errorf("record not created from out-of-order update: %v", err)
	}
}

func TestApplyRemoteDeleted(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	c, _ := eng.AddLocal(ctx, "to be deleted", AddOptions{})
	if err := eng.Select(c.ID); err != nil {
		t.Fatal(err)
	}

	if err := eng.ApplyRemoteDeleted(ctx, c.ID); err != nil {
		t.Fatalf("ApplyRemoteDeleted() error: %v", err)
	}
	if eng.Len() != 0 {
		t.Errorf("Len() = %d, want 0", eng.Len())
	}
	if sel := eng.Selected(); sel != nil {
		t.Errorf("Selected() = %v after delete, want nil", sel)
	}

	// Idempotent: absent id is a no-op
	if err := eng.ApplyRemoteDeleted(ctx, c.ID); err != nil {
		t.Errorf("second ApplyRemoteDeleted() error: %v", err)
	}
	if err := eng.ApplyRemoteDeleted(ctx, "never-existed"); err != nil {
		t.Errorf("ApplyRemoteDeleted(unknown) error: %v", err)
	}
}

func TestTogglePin(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	ctx := context.Background()

	c, _ := eng.AddLocal(ctx, "pin me", AddOptions{})

	pinned, err := eng.TogglePin(ctx, c.ID)
	if err != nil {
		t.Fatalf("TogglePin() error: %v", err)
	}
	if !pinned.Pinned {
		t.Error("Pinned = false after toggle, want true")
	}
	if pinned.SyncState != clip.SyncPending {
		t.Errorf("SyncState = %q, want %q", pinned.SyncState, clip.SyncPending)
	}

	unpinned, err := eng.TogglePin(ctx, c.ID)
	if err != nil {
		t.Fatalf("second TogglePin() error: %v", err)
	}
	if unpinned.Pinned {
		t.Error("Pinned = true after second toggle, want false")
	}

	if _, err := eng.TogglePin(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("TogglePin(missing) = %v, want ErrNotFound", err)
	}

	if len(rec.updated) < 2 {
		t.Errorf("updated notifications = %v, want two toggles", rec.updated)
	}
}

func TestDelete(t *testing.T) {
	eng, _, rec := newTestEngine(t)
	ctx := context.Background()

	c, _ := eng.AddLocal(ctx, "short lived", AddOptions{})

	if err := eng.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := eng.Delete(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() = %v, want ErrNotFound", err)
	}
	if !reflect.DeepEqual(rec.deleted, []string{c.ID}) {
		t.Errorf("deleted notifications = %v, want [%s]", rec.deleted, c.ID)
	}
}

func TestBulkDelete(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	a, _ := eng.AddLocal(ctx, "first clip", AddOptions{})
	b, _ := eng.AddLocal(ctx, "second clip", AddOptions{})

	succeeded, err := eng.BulkDelete(ctx, []string{a.ID, "absent-id", b.ID})
	if err != nil {
		t.Fatalf("BulkDelete() error: %v", err)
	}
	if len(succeeded) != 3 {
		t.Errorf("succeeded = %v, want all three (absent counts as done)", succeeded)
	}
	if eng.Len() != 0 {
		t.Errorf("Len() = %d, want 0", eng.Len())
	}
}

func TestBulkDeletePartialFailure(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	a, _ := eng.AddLocal(ctx, "first clip", AddOptions{})

	st.delErr = fmt.Errorf("io error")

	succeeded, err := eng.BulkDelete(ctx, []string{a.ID})
	var partial *PartialBatchError
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want PartialBatchError", err)
	}
	if len(succeeded) != 0 || len(partial.Failed) != 1 {
		t.Errorf("succeeded=%v failed=%v, want failure for %s", succeeded, partial.Failed, a.ID)
	}
	if eng.Len() != 1 {
		t.Errorf("Len() = %d after failed delete, want 1", eng.Len())
	}
}

func TestBulkTag(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	a, _ := eng.AddLocal(ctx, "first clip", AddOptions{Manual: true, Tags: []string{"old"}})
	b, _ := eng.AddLocal(ctx, "second clip", AddOptions{Manual: true})

	tests := []struct {
		name string
		ids  []string
		tags []string
		mode TagMode
		want map[string][]string
	}{
		{
			name: "add unions",
			ids:  []string{a.ID, b.ID},
			tags: []string{"work", "old"},
			mode: TagAdd,
			want: map[string][]string{a.ID: {"old", "work"}, b.ID: {"work", "old"}},
		},
		{
			name: "remove subtracts",
			ids:  []string{a.ID},
			tags: []string{"old"},
			mode: TagRemove,
			want: map[string][]string{a.ID: {"work"}},
		},
		{
			name: "replace overwrites",
			ids:  []string{b.ID},
			tags: []string{"archive"},
			mode: TagReplace,
			want: map[string][]string{b.ID: {"archive"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			succeeded, err := eng.BulkTag(ctx, tt.ids, tt.tags, tt.mode)
			if err != nil {
				t.Fatalf("BulkTag() error: %v", err)
			}
			if len(succeeded) != len(tt.ids) {
				t.Errorf("succeeded = %v, want %v", succeeded, tt.ids)
			}
			for id, want := range tt.want {
				got, _ := eng.Get(id)
				if !reflect.DeepEqual(got.Tags, want) {
					t.Errorf("tags for %s = %v, want %v", id, got.Tags, want)
				}
			}
		})
	}
}

func TestBulkTagAbsentIDFails(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	a, _ := eng.AddLocal(ctx, "first clip", AddOptions{})

	succeeded, err := eng.BulkTag(ctx, []string{a.ID, "absent-id"}, []string{"x"}, TagAdd)
	var partial *PartialBatchError
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want PartialBatchError", err)
	}
	if !reflect.DeepEqual(succeeded, []string{a.ID}) {
		t.Errorf("succeeded = %v, want [%s]", succeeded, a.ID)
	}
	if !errors.Is(partial.Errs["absent-id"], ErrNotFound) {
		t.Errorf("absent id error = %v, want ErrNotFound", partial.Errs["absent-id"])
	}
}

func TestBulkTagUnknownMode(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.BulkTag(context.Background(), []string{"any"}, []string{"x"}, TagMode("sideways"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestMergeSelected(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	foo, _ := eng.AddLocal(ctx, "foo", AddOptions{Manual: true, Tags: []string{"a"}})
	bar, _ := eng.AddLocal(ctx, "bar", AddOptions{Manual: true, Tags: []string{"b", "a"}})

	if err := eng.Select(foo.ID); err != nil {
		t.Fatal(err)
	}

	// Join order is the id order given, not creation order
	merged, err := eng.MergeSelected(ctx, []string{bar.ID, foo.ID}, "\n")
	if err != nil {
		t.Fatalf("MergeSelected() error: %v", err)
	}
	if merged.Content != "bar\nfoo" {
		t.Errorf("Content = %q, want %q", merged.Content, "bar\nfoo")
	}
	if !reflect.DeepEqual(merged.Tags, []string{"b", "a"}) {
		t.Errorf("Tags = %v, want union in id order [b a]", merged.Tags)
	}
	if merged.Source != "merge" {
		t.Errorf("Source = %q, want %q", merged.Source, "merge")
	}

	// Sources survive, selection is cleared
	if eng.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (sources kept)", eng.Len())
	}
	if sel := eng.Selected(); sel != nil {
		t.Errorf("Selected() = %v after merge, want nil", sel)
	}
}

func TestMergeSelectedErrors(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	a, _ := eng.AddLocal(ctx, "only one", AddOptions{})

	if _, err := eng.MergeSelected(ctx, []string{a.ID}, "\n"); !errors.Is(err, ErrInsufficientSelection) {
		t.Errorf("single id error = %v, want ErrInsufficientSelection", err)
	}

	if _, err := eng.MergeSelected(ctx, []string{a.ID, "absent-id"}, "\n"); !errors.Is(err, ErrNotFound) {
		t.Errorf("absent id error = %v, want ErrNotFound", err)
	}
	if eng.Len() != 1 {
		t.Errorf("Len() = %d after failed merge, want 1 (no partial effect)", eng.Len())
	}
}

func TestSplitRecord(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	src, _ := eng.AddLocal(ctx, "aa,bb,,cc", AddOptions{Manual: true, Source: "cli"})

	parts, err := eng.SplitRecord(ctx, src.ID, ",")
	if err != nil {
		t.Fatalf("SplitRecord() error: %v", err)
	}

	var contents []string
	for _, p := range parts {
		contents = append(contents, p.Content)
		if p.Source != "cli" {
			t.Errorf("Source = %q, want inherited %q", p.Source, "cli")
		}
	}
	if !reflect.DeepEqual(contents, []string{"aa", "bb", "cc"}) {
		t.Errorf("segments = %v, want [aa bb cc] (empty dropped)", contents)
	}

	// Original record is kept
	if _, err := eng.Get(src.ID); err != nil {
		t.Errorf("source record gone after split: %v", err)
	}
	if eng.Len() != 4 {
		t.Errorf("Len() = %d, want 4", eng.Len())
	}
}

func TestSplitRecordErrors(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	src, _ := eng.AddLocal(ctx, "whatever content", AddOptions{})

	if _, err := eng.SplitRecord(ctx, "absent-id", ","); !errors.Is(err, ErrNotFound) {
		t.Errorf("absent id error = %v, want ErrNotFound", err)
	}

	_, err := eng.SplitRecord(ctx, src.ID, "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("empty delimiter error = %v, want ValidationError", err)
	}
}

func TestSelectedMissingRecord(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	c, _ := eng.AddLocal(ctx, "select me", AddOptions{})
	if err := eng.Select(c.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.Select("absent-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Select(absent) = %v, want ErrNotFound", err)
	}

	if err := eng.Delete(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if sel := eng.Selected(); sel != nil {
		t.Errorf("Selected() = %v for deleted record, want nil", sel)
	}
}

func TestListNewestFirst(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	for _, content := range []string{"first item", "second item", "third item"} {
		if _, err := eng.AddLocal(ctx, content, AddOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	list := eng.List()
	if len(list) != 3 {
		t.Fatalf("List() returned %d, want 3", len(list))
	}
	if !sort.SliceIsSorted(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	}) {
		t.Error("List() not sorted newest first")
	}

	// Copies, not aliases
	list[0].Content = "mutated"
	fresh, _ := eng.Get(list[0].ID)
	if fresh.Content == "mutated" {
		t.Error("List() returned aliases into the canonical list")
	}
}

func TestMarkSynced(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	c, _ := eng.AddLocal(ctx, "sync me", AddOptions{})

	eng.MarkSynced(c.ID)
	got, _ := eng.Get(c.ID)
	if got.SyncState != clip.SyncAcked {
		t.Errorf("SyncState = %q, want %q", got.SyncState, clip.SyncAcked)
	}
	persisted, _ := st.Get(ctx, c.ID)
	if persisted.SyncState != clip.SyncAcked {
		t.Errorf("persisted SyncState = %q, want %q", persisted.SyncState, clip.SyncAcked)
	}

	eng.MarkSyncFailed(c.ID)
	got, _ = eng.Get(c.ID)
	if got.SyncState != clip.SyncFailed {
		t.Errorf("SyncState = %q, want %q", got.SyncState, clip.SyncFailed)
	}

	// Unknown ids are ignored
	eng.MarkSynced("absent-id")
}

func TestClear(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()

	eng.AddLocal(ctx, "one thing", AddOptions{})
	eng.AddLocal(ctx, "another thing", AddOptions{})

	if err := eng.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if eng.Len() != 0 || st.len() != 0 {
		t.Errorf("after Clear: Len()=%d store=%d, want 0/0", eng.Len(), st.len())
	}
}

// blockingStore stalls the first Delete until released, holding a
// mutation open mid-flight.
type blockingStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) Delete(ctx context.Context, id string) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.memStore.Delete(ctx, id)
}

func TestClearSerializesConcurrentCapture(t *testing.T) {
	st := &blockingStore{
		memStore: newMemStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	eng, err := New(st, quietConfig())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()

	eng.AddLocal(ctx, "pre-existing one", AddOptions{})
	eng.AddLocal(ctx, "pre-existing two", AddOptions{})

	cleared := make(chan error, 1)
	go func() { cleared <- eng.Clear(ctx) }()

	// Clear is mid-deletion and must hold its lock until done
	<-st.entered

	captured := make(chan *clip.Clip, 1)
	go func() {
		c, _ := eng.AddLocal(ctx, "landed during clear", AddOptions{})
		captured <- c
	}()

	close(st.release)
	if err := <-cleared; err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	// The capture serialized after the clear, so it is the sole survivor
	c := <-captured
	if c == nil {
		t.Fatal("concurrent capture was suppressed")
	}
	if _, err := eng.Get(c.ID); err != nil {
		t.Errorf("capture serialized around Clear is gone: %v", err)
	}
	if eng.Len() != 1 {
		t.Errorf("Len() = %d, want 1", eng.Len())
	}
}
