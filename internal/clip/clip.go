// Package clip provides the clip record data model shared by the store,
// the reconciliation engine, and the capture daemon.
package clip

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncState tracks the outbound replication status of a record.
//
// Local mutations start in SyncPending. The op log marks records
// SyncAcked when the notify succeeds, or SyncFailed once retries are
// exhausted. Records applied from remote events are stored SyncAcked
// since the server already has them.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncAcked   SyncState = "acked"
	SyncFailed  SyncState = "failed"
)

// Clip represents one captured clipboard entry.
//
// Content is immutable once the record exists; editing is modeled as
// delete+create by the callers. Fields are flat with last-write-wins
// semantics so that remote "updated" events can replace a record
// wholesale by id.
type Clip struct {
	// ===== Identity =====

	// ID is the canonical identifier. Locally-created records use a
	// client-generated uuid until the backend assigns one; see LocalID.
	ID string `json:"id"`

	// LocalID is the client-generated uuid this record was created
	// under. The backend echoes it in the created event it fans back
	// out, which is how the engine remaps a local record to its
	// server-assigned id.
	LocalID string `json:"local_id,omitempty"`

	// ===== Payload =====

	Content string `json:"content"`
	Type    string `json:"type"` // classifier tag: text, code, url, ...

	// ===== Mutable metadata =====

	Pinned    bool     `json:"pinned"`
	CopyCount int      `json:"copy_count"` // times this content was re-captured, >= 1
	Tags      []string `json:"tags,omitempty"`
	Source    string   `json:"source,omitempty"` // best-effort provenance, non-authoritative

	// ===== Namespace =====

	// TeamID is empty for personal clips. Personal and team records
	// are disjoint namespaces that never merge.
	TeamID string `json:"team_id,omitempty"`

	// ===== Timestamps =====

	// CreatedAt is the time of first capture. Re-capturing duplicate
	// content bumps it. Used for ordering and display only, never for
	// conflict resolution.
	CreatedAt time.Time `json:"created_at"`

	// ===== Replication =====

	SyncState SyncState `json:"sync_state,omitempty"`
}

// Classifier assigns a type tag to captured content.
//
// Classification heuristics are an external collaborator; DefaultClassifier
// is a trivial stand-in so the CLI works without one.
type Classifier func(content string) string

// DefaultClassifier tags obvious URLs and brace-heavy text, everything
// else is plain text.
func DefaultClassifier(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return "url"
	}
	if strings.ContainsAny(trimmed, "{};") && strings.Contains(trimmed, "\n") {
		return "code"
	}
	return "text"
}

// NewID returns a fresh client-local identifier.
func NewID() string {
	return uuid.NewString()
}

// Validate checks that the record has valid field values.
func (c *Clip) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Content == "" {
		return fmt.Errorf("content is required")
	}
	if c.Type == "" {
		return fmt.Errorf("type is required")
	}
	if c.CopyCount < 1 {
		return fmt.Errorf("copy_count must be at least 1 (got %d)", c.CopyCount)
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
// This ensures consistent behavior when fields are omitted.
func (c *Clip) SetDefaults() {
	if c.ID == "" {
		c.ID = NewID()
		c.LocalID = c.ID
	}
	if c.Type == "" {
		c.Type = "text"
	}
	if c.CopyCount < 1 {
		c.CopyCount = 1
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.SyncState == "" {
		c.SyncState = SyncPending
	}
}

// Clone returns a deep copy of the record.
//
// The engine hands out copies so callers can never mutate the
// canonical list behind its back.
func (c *Clip) Clone() *Clip {
	dup := *c
	if c.Tags != nil {
		dup.Tags = append([]string(nil), c.Tags...)
	}
	return &dup
}

// HasTag reports whether the record carries the given tag.
func (c *Clip) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Filename returns the canonical filename for this record: {id}.json
func (c *Clip) Filename() string {
	return fmt.Sprintf("%s.json", c.ID)
}

// ReadFile reads and parses a clip JSON file from the given path.
//
// Used by the daemon's inbox importer: files dropped into the inbox
// directory are parsed with this and added as manual clips.
func ReadFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip file %s: %w", path, err)
	}

	var c Clip
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse clip file %s: %w", path, err)
	}

	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clip file %s: %w", path, err)
	}

	return &c, nil
}

// WriteFile writes a clip to dir as pretty-printed JSON.
func WriteFile(dir string, c *Clip) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid clip: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create clip directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal clip %s: %w", c.ID, err)
	}

	path := filepath.Join(dir, c.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write clip file %s: %w", path, err)
	}

	return nil
}
