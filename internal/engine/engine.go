// Package engine implements the per-namespace clip reconciliation engine.
//
// The engine is the single authority over the canonical list of clip
// records for one namespace (personal, or one team). It:
//  1. Applies local mutations (capture, pin, tag, delete, merge, split)
//  2. Applies remote created/updated/deleted events idempotently
//  3. Persists every mutation to the local store before committing it
//     to the in-memory list
//  4. Queues best-effort outbound notifications for local mutations
//
// All mutation entry points are serialized by one mutex held across the
// persistence write. View derivation (package view) reads a snapshot
// from List() and never touches engine state.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clipd-io/clipd/internal/clip"
	"github.com/clipd-io/clipd/internal/store"
)

// Outbound receives fire-and-forget notifications about local
// mutations. Implementations must not block: the engine calls these
// while holding its mutation lock. The op log (internal/remote)
// implements this with a buffered queue.
type Outbound interface {
	EnqueueCreated(c *clip.Clip)
	EnqueueUpdated(c *clip.Clip)
	EnqueueDeleted(id string)
}

// TagMode selects how BulkTag combines tags with existing ones.
type TagMode string

const (
	TagAdd     TagMode = "add"
	TagRemove  TagMode = "remove"
	TagReplace TagMode = "replace"
)

// AddOptions configures AddLocal.
type AddOptions struct {
	// Manual marks an explicit user action. Manual creates bypass the
	// capture gate, incognito suppression, and duplicate merging.
	Manual bool

	// Source is free-form provenance (app name, hostname). Best-effort.
	Source string

	// Type overrides the classifier's tag. Used by import, which must
	// preserve the original tag rather than re-classify.
	Type string

	// Tags, Pinned and CopyCount seed the new record's metadata.
	// CopyCount <= 0 means 1. Used by import and merge.
	Tags      []string
	Pinned    bool
	CopyCount int
}

// Config holds engine configuration.
type Config struct {
	// Namespace is empty for personal clips, or a team id.
	Namespace string

	// Classifier assigns type tags to new captures.
	// Defaults to clip.DefaultClassifier.
	Classifier clip.Classifier

	// Outbound receives notifications for local mutations. Optional;
	// nil disables outbound sync.
	Outbound Outbound

	// OnDuplicate is called after an automatic capture merged into an
	// existing record. Receives the new copy count and a copy of the
	// record. Optional.
	OnDuplicate func(count int, c *clip.Clip)

	// Logger for engine activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Classifier: clip.DefaultClassifier,
		Logger:     log.New(os.Stderr, "[engine] ", log.LstdFlags),
	}
}

// Engine owns the canonical clip list for one namespace.
type Engine struct {
	st     store.Store
	config *Config

	// mu serializes every mutation entry point, including the
	// persistence write inside it. Admission order is mutation order.
	mu sync.Mutex

	clips     []*clip.Clip // canonical list, insertion order
	byID      map[string]*clip.Clip
	dupes     *dupeIndex
	selected  string
	incognito bool
}

// New creates an engine over the given store and loads the canonical
// list from it.
//
// Example:
//
//	st, err := store.OpenSQLite(dbPath, "")
//	if err != nil {
//	    return err
//	}
//	eng, err := engine.New(st, nil)
func New(st store.Store, config *Config) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Classifier == nil {
		config.Classifier = clip.DefaultClassifier
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	e := &Engine{
		st:     st,
		config: config,
		byID:   make(map[string]*clip.Clip),
		dupes:  newDupeIndex(),
	}

	existing, err := st.GetAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load clips: %w", err)
	}
	for _, c := range existing {
		e.insert(c)
	}

	return e, nil
}

// Namespace returns the namespace this engine owns.
func (e *Engine) Namespace() string {
	return e.config.Namespace
}

// SetIncognito toggles suppression of automatic captures.
// Manual creation is never suppressed.
func (e *Engine) SetIncognito(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.incognito = on
}

// SetOutbound wires the outbound notifier after construction. The
// notifier usually wraps a client whose event handler is this engine,
// so it cannot exist before New returns. Call before mutations start.
func (e *Engine) SetOutbound(o Outbound) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.Outbound = o
}

// Incognito reports whether automatic captures are suppressed.
func (e *Engine) Incognito() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incognito
}

// AddLocal captures a piece of content into the namespace.
//
// Automatic captures (opts.Manual == false):
//   - return (nil, nil) when incognito is on or the capture gate
//     rejects the content; this is a no-op, not an error
//   - merge into an existing record when the content is an exact
//     duplicate: copy_count++ and created_at refreshed, no new record
//
// Manual captures always create a new record, even for duplicate
// content.
//
// The record is persisted before the canonical list is updated; a
// store failure returns PersistenceError and leaves the list unchanged.
func (e *Engine) AddLocal(ctx context.Context, content string, opts AddOptions) (*clip.Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addLocalLocked(ctx, content, opts)
}

// addLocalLocked is AddLocal without the lock, so merge and split can
// compose it inside one serialized mutation. Caller holds e.mu.
func (e *Engine) addLocalLocked(ctx context.Context, content string, opts AddOptions) (*clip.Clip, error) {
	if !opts.Manual {
		if e.incognito {
			return nil, nil
		}
		if !ShouldCapture(content) {
			return nil, nil
		}
		if id, ok := e.dupes.lookup(content); ok {
			return e.bumpDuplicate(ctx, content, id)
		}
	} else if content == "" {
		return nil, &ValidationError{Op: "add", Reason: "content is empty"}
	}

	c := &clip.Clip{
		ID:        clip.NewID(),
		Content:   content,
		Type:      opts.Type,
		Source:    opts.Source,
		Pinned:    opts.Pinned,
		CopyCount: opts.CopyCount,
		Tags:      opts.Tags,
		TeamID:    e.config.Namespace,
		CreatedAt: time.Now(),
		SyncState: clip.SyncPending,
	}
	c.LocalID = c.ID
	if c.Type == "" {
		c.Type = e.config.Classifier(content)
	}
	c.SetDefaults()

	if err := e.st.Put(ctx, c); err != nil {
		return nil, &PersistenceError{Op: "add", ID: c.ID, Err: err}
	}

	e.insert(c)
	e.notifyCreated(c)

	return c.Clone(), nil
}

// bumpDuplicate increments the copy count of an existing record.
// Caller holds e.mu.
func (e *Engine) bumpDuplicate(ctx context.Context, content, id string) (*clip.Clip, error) {
	existing := e.byID[id]
	if existing == nil {
		// Index out of step with the list; drop the stale entry and
		// let the caller's next capture re-create the record.
		e.dupes.remove(content, id)
		return nil, &PersistenceError{Op: "add", ID: id, Err: fmt.Errorf("duplicate index references missing record")}
	}

	updated := existing.Clone()
	updated.CopyCount++
	updated.CreatedAt = time.Now()
	updated.SyncState = clip.SyncPending

	if err := e.st.Put(ctx, updated); err != nil {
		return nil, &PersistenceError{Op: "add", ID: id, Err: err}
	}

	*existing = *updated
	e.notifyUpdated(existing)

	if e.config.OnDuplicate != nil {
		e.config.OnDuplicate(existing.CopyCount, existing.Clone())
	}

	return existing.Clone(), nil
}

// ApplyRemoteCreated merges a created event from another device.
//
// Idempotent: a record whose id is already present is a no-op.
// Remote creates are id-based and never content-merged; two devices
// capturing the same text legitimately produce two records.
//
// If the event's local_id matches a record we created (the backend
// echoes client ids when it assigns canonical ones), the local record
// is remapped to the server id instead of duplicated.
func (e *Engine) ApplyRemoteCreated(ctx context.Context, rec *clip.Clip) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byID[rec.ID]; ok {
		return nil
	}

	if rec.LocalID != "" && rec.LocalID != rec.ID {
		if local, ok := e.byID[rec.LocalID]; ok {
			return e.remapID(ctx, local, rec)
		}
	}

	c := rec.Clone()
	c.TeamID = e.config.Namespace
	c.SyncState = clip.SyncAcked
	c.SetDefaults()

	if err := e.st.Put(ctx, c); err != nil {
		return &PersistenceError{Op: "remote-create", ID: c.ID, Err: err}
	}

	e.insert(c)
	return nil
}

// remapID swaps a locally-created record onto its server-assigned id.
// Caller holds e.mu.
func (e *Engine) remapID(ctx context.Context, local *clip.Clip, rec *clip.Clip) error {
	oldID := local.ID

	merged := rec.Clone()
	merged.TeamID = e.config.Namespace
	merged.SyncState = clip.SyncAcked
	merged.SetDefaults()

	if err := e.st.Put(ctx, merged); err != nil {
		return &PersistenceError{Op: "remote-create", ID: merged.ID, Err: err}
	}
	if err := e.st.Delete(ctx, oldID); err != nil {
		// The new row is already persisted; the stale one will load as
		// a duplicate on next start. Log rather than failing the event.
		e.config.Logger.Printf("Warning: failed to remove remapped clip %s: %v", oldID, err)
	}

	e.dupes.rename(local.Content, oldID, merged.ID)
	delete(e.byID, oldID)
	*local = *merged
	e.byID[local.ID] = local

	if e.selected == oldID {
		e.selected = local.ID
	}

	e.config.Logger.Printf("Remapped clip %s -> %s", oldID, local.ID)
	return nil
}

// ApplyRemoteUpdated merges an updated event from another device.
//
// Replace-by-id: the incoming record's mutable fields replace the local
// ones wholesale. An unknown id is treated as a missed create, to
// tolerate out-of-order delivery.
func (e *Engine) ApplyRemoteUpdated(ctx context.Context, rec *clip.Clip) error {
	e.mu.Lock()
	existing, ok := e.byID[rec.ID]
	if !ok {
		e.mu.Unlock()
		return e.ApplyRemoteCreated(ctx, rec)
	}
	defer e.mu.Unlock()

	merged := rec.Clone()
	merged.TeamID = e.config.Namespace
	merged.Type = existing.Type // type is set once at creation, never mutated by sync
	merged.SyncState = clip.SyncAcked
	merged.SetDefaults()

	if err := e.st.Put(ctx, merged); err != nil {
		return &PersistenceError{Op: "remote-update", ID: merged.ID, Err: err}
	}

	if existing.Content != merged.Content {
		e.dupes.remove(existing.Content, existing.ID)
		e.dupes.add(merged.Content, merged.ID)
	}
	*existing = *merged
	return nil
}

// ApplyRemoteDeleted merges a deleted event from another device.
//
// Idempotent: deleting an absent id is a no-op, not an error. If the
// deleted record was selected, the selection is cleared.
func (e *Engine) ApplyRemoteDeleted(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byID[id]; !ok {
		return nil
	}

	if err := e.st.Delete(ctx, id); err != nil {
		return &PersistenceError{Op: "remote-delete", ID: id, Err: err}
	}

	e.removeLocked(id)
	return nil
}

// TogglePin flips the pinned flag on a record.
func (e *Engine) TogglePin(ctx context.Context, id string) (*clip.Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	updated := existing.Clone()
	updated.Pinned = !updated.Pinned
	updated.SyncState = clip.SyncPending

	if err := e.st.Put(ctx, updated); err != nil {
		return nil, &PersistenceError{Op: "pin", ID: id, Err: err}
	}

	*existing = *updated
	e.notifyUpdated(existing)
	return existing.Clone(), nil
}

// Delete removes a record from the namespace.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byID[id]; !ok {
		return ErrNotFound
	}

	if err := e.st.Delete(ctx, id); err != nil {
		return &PersistenceError{Op: "delete", ID: id, Err: err}
	}

	e.removeLocked(id)
	e.notifyDeleted(id)
	return nil
}

// BulkDelete removes several records. Non-atomic: a store failure
// partway through leaves the earlier deletions committed.
//
// Returns the succeeded ids and, when any item failed, a
// PartialBatchError listing both subsets. Absent ids count as
// succeeded (the deletion is trivially complete).
func (e *Engine) BulkDelete(ctx context.Context, ids []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bulkDeleteLocked(ctx, ids)
}

// bulkDeleteLocked is BulkDelete without the lock, so Clear can compose
// it with its snapshot inside one serialized mutation. Caller holds e.mu.
func (e *Engine) bulkDeleteLocked(ctx context.Context, ids []string) ([]string, error) {
	var succeeded, failed []string
	errs := make(map[string]error)

	for _, id := range ids {
		if _, ok := e.byID[id]; !ok {
			succeeded = append(succeeded, id)
			continue
		}
		if err := e.st.Delete(ctx, id); err != nil {
			failed = append(failed, id)
			errs[id] = err
			continue
		}
		e.removeLocked(id)
		e.notifyDeleted(id)
		succeeded = append(succeeded, id)
	}

	if len(failed) > 0 {
		return succeeded, &PartialBatchError{Op: "bulk-delete", Succeeded: succeeded, Failed: failed, Errs: errs}
	}
	return succeeded, nil
}

// BulkTag applies a tag mutation to several records.
//
// Mode add unions tags in, remove subtracts them, replace overwrites
// the whole set. Non-atomic; see BulkDelete for the failure contract.
// Absent ids count as failed.
func (e *Engine) BulkTag(ctx context.Context, ids []string, tags []string, mode TagMode) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch mode {
	case TagAdd, TagRemove, TagReplace:
	default:
		return nil, &ValidationError{Op: "bulk-tag", Reason: fmt.Sprintf("unknown tag mode %q", mode)}
	}

	var succeeded, failed []string
	errs := make(map[string]error)

	for _, id := range ids {
		existing, ok := e.byID[id]
		if !ok {
			failed = append(failed, id)
			errs[id] = ErrNotFound
			continue
		}

		updated := existing.Clone()
		updated.Tags = applyTags(updated.Tags, tags, mode)
		updated.SyncState = clip.SyncPending

		if err := e.st.Put(ctx, updated); err != nil {
			failed = append(failed, id)
			errs[id] = err
			continue
		}

		*existing = *updated
		e.notifyUpdated(existing)
		succeeded = append(succeeded, id)
	}

	if len(failed) > 0 {
		return succeeded, &PartialBatchError{Op: "bulk-tag", Succeeded: succeeded, Failed: failed, Errs: errs}
	}
	return succeeded, nil
}

// applyTags combines existing and incoming tag sets per mode,
// preserving first-seen order and dropping duplicates.
func applyTags(existing, incoming []string, mode TagMode) []string {
	switch mode {
	case TagReplace:
		return dedupeTags(incoming)
	case TagRemove:
		drop := make(map[string]bool, len(incoming))
		for _, t := range incoming {
			drop[t] = true
		}
		out := []string{}
		for _, t := range existing {
			if !drop[t] {
				out = append(out, t)
			}
		}
		return out
	default: // TagAdd
		return dedupeTags(append(append([]string{}, existing...), incoming...))
	}
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := []string{}
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// MergeSelected combines several records into one new manual record.
//
// Contents are joined by sep in the order the ids were given (not
// canonical order); the new record's tags are the union of the source
// records' tags. Source records are kept. The selection is cleared on
// success.
//
// Fails with ErrInsufficientSelection for fewer than two ids and
// ErrNotFound if any id is absent, with no partial effect.
func (e *Engine) MergeSelected(ctx context.Context, ids []string, sep string) (*clip.Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(ids) < 2 {
		return nil, ErrInsufficientSelection
	}

	var contents []string
	var tags []string
	for _, id := range ids {
		rec, ok := e.byID[id]
		if !ok {
			return nil, fmt.Errorf("merge %s: %w", id, ErrNotFound)
		}
		contents = append(contents, rec.Content)
		tags = append(tags, rec.Tags...)
	}

	merged, err := e.addLocalLocked(ctx, strings.Join(contents, sep), AddOptions{
		Manual: true,
		Source: "merge",
		Tags:   dedupeTags(tags),
	})
	if err != nil {
		return nil, err
	}

	e.selected = ""
	return merged, nil
}

// SplitRecord splits a record's content on delim and creates one new
// manual record per non-empty segment, preserving relative order. The
// original record is kept.
//
// Non-atomic: a store failure partway through returns the records
// created so far alongside a PartialBatchError.
func (e *Engine) SplitRecord(ctx context.Context, id, delim string) ([]*clip.Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	if delim == "" {
		return nil, &ValidationError{Op: "split", Reason: "delimiter is empty"}
	}

	var created []*clip.Clip
	var createdIDs, failed []string
	errs := make(map[string]error)

	for i, segment := range strings.Split(rec.Content, delim) {
		if segment == "" {
			continue
		}
		c, err := e.addLocalLocked(ctx, segment, AddOptions{Manual: true, Source: rec.Source})
		if err != nil {
			key := fmt.Sprintf("segment-%d", i)
			failed = append(failed, key)
			errs[key] = err
			continue
		}
		created = append(created, c)
		createdIDs = append(createdIDs, c.ID)
	}

	if len(failed) > 0 {
		return created, &PartialBatchError{Op: "split", Succeeded: createdIDs, Failed: failed, Errs: errs}
	}
	return created, nil
}

// Clear deletes every record in the namespace. Used by import's
// replace mode. The snapshot and the deletions happen under one lock
// acquisition, so a concurrent capture lands either entirely before
// (and is cleared) or entirely after (and survives).
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.clips))
	for _, c := range e.clips {
		ids = append(ids, c.ID)
	}
	_, err := e.bulkDeleteLocked(ctx, ids)
	return err
}

// Select marks a record as the current selection.
func (e *Engine) Select(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byID[id]; !ok {
		return ErrNotFound
	}
	e.selected = id
	return nil
}

// Deselect clears the current selection.
func (e *Engine) Deselect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = ""
}

// Selected returns a copy of the currently selected record, or nil if
// nothing is selected. A selection pointing at a record that no longer
// exists reads as "no selection", never an error.
func (e *Engine) Selected() *clip.Clip {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.selected == "" {
		return nil
	}
	rec, ok := e.byID[e.selected]
	if !ok {
		e.selected = ""
		return nil
	}
	return rec.Clone()
}

// Get returns a copy of a record by id.
func (e *Engine) Get(id string) (*clip.Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns a defensive copy of the canonical list, newest first.
// Presentation order only; canonical storage order is insertion order.
func (e *Engine) List() []*clip.Clip {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*clip.Clip, 0, len(e.clips))
	for _, c := range e.clips {
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of records in the namespace.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.clips)
}

// MarkSynced records that the outbound notify for id succeeded.
// Called by the op log; never fails the caller.
func (e *Engine) MarkSynced(id string) {
	e.setSyncState(id, clip.SyncAcked)
}

// MarkSyncFailed records that outbound retries for id were exhausted.
func (e *Engine) MarkSyncFailed(id string) {
	e.setSyncState(id, clip.SyncFailed)
}

func (e *Engine) setSyncState(id string, state clip.SyncState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.byID[id]
	if !ok {
		return
	}
	if rec.SyncState == state {
		return
	}

	updated := rec.Clone()
	updated.SyncState = state
	if err := e.st.Put(context.Background(), updated); err != nil {
		e.config.Logger.Printf("Warning: failed to persist sync state for %s: %v", id, err)
		return
	}
	*rec = *updated
}

// insert adds a record to the canonical list and indexes.
// Caller holds e.mu (or the engine is not yet shared).
func (e *Engine) insert(c *clip.Clip) {
	e.clips = append(e.clips, c)
	e.byID[c.ID] = c
	e.dupes.add(c.Content, c.ID)
}

// removeLocked drops a record from the canonical list and indexes,
// clearing the selection if it pointed at the record. Caller holds e.mu.
func (e *Engine) removeLocked(id string) {
	rec := e.byID[id]
	if rec == nil {
		return
	}

	delete(e.byID, id)
	e.dupes.remove(rec.Content, id)
	for i, c := range e.clips {
		if c.ID == id {
			e.clips = append(e.clips[:i], e.clips[i+1:]...)
			break
		}
	}
	if e.selected == id {
		e.selected = ""
	}
}

func (e *Engine) notifyCreated(c *clip.Clip) {
	if e.config.Outbound != nil {
		e.config.Outbound.EnqueueCreated(c.Clone())
	}
}

func (e *Engine) notifyUpdated(c *clip.Clip) {
	if e.config.Outbound != nil {
		e.config.Outbound.EnqueueUpdated(c.Clone())
	}
}

func (e *Engine) notifyDeleted(id string) {
	if e.config.Outbound != nil {
		e.config.Outbound.EnqueueDeleted(id)
	}
}
