// Package export implements the JSON export/import format for clip
// namespaces.
//
// The document shape round-trips the user-meaningful fields of every
// record (content, type, timestamp, pinned, copy_count, source, tags);
// ids and sync state are deliberately excluded, so an import always
// mints fresh records.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/clipd-io/clipd/internal/clip"
	"github.com/clipd-io/clipd/internal/engine"
)

// Version is the current export document version.
const Version = 1

// Document is the top-level export format.
type Document struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	ClipCount  int       `json:"clip_count"`
	Clips      []Entry   `json:"clips"`
}

// Entry is one exported record.
type Entry struct {
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Pinned    bool      `json:"pinned"`
	CopyCount int       `json:"copy_count"`
	Source    string    `json:"source,omitempty"`
	Tags      []string  `json:"tags"`
}

// Mode selects how Import treats existing records.
type Mode string

const (
	// ModeReplace clears the namespace before importing.
	ModeReplace Mode = "replace"

	// ModeMerge adds every entry alongside existing records. Imported
	// entries are manual creates, so duplicates are NOT content-merged
	// against existing records.
	ModeMerge Mode = "merge"
)

// Result contains statistics about an import.
type Result struct {
	Imported int
	Cleared  int
	Errors   []string
}

// Target is the mutation surface Import needs. The engine satisfies it.
type Target interface {
	AddLocal(ctx context.Context, content string, opts engine.AddOptions) (*clip.Clip, error)
	Clear(ctx context.Context) error
	Len() int
}

// Export builds a document from a clip list snapshot.
func Export(list []*clip.Clip) *Document {
	doc := &Document{
		Version:    Version,
		ExportedAt: time.Now(),
		ClipCount:  len(list),
		Clips:      make([]Entry, 0, len(list)),
	}

	for _, c := range list {
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		doc.Clips = append(doc.Clips, Entry{
			Content:   c.Content,
			Type:      c.Type,
			Timestamp: c.CreatedAt,
			Pinned:    c.Pinned,
			CopyCount: c.CopyCount,
			Source:    c.Source,
			Tags:      tags,
		})
	}

	return doc
}

// WriteFile writes a document to path as pretty-printed JSON.
// The write is atomic via a temp file and rename.
func WriteFile(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export document: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ReadFile reads and parses an export document, applying defaults for
// missing fields (pinned=false, copy_count=1, tags=[]).
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export file %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse export file %s: %w", path, err)
	}

	for i := range doc.Clips {
		entry := &doc.Clips[i]
		if entry.CopyCount < 1 {
			entry.CopyCount = 1
		}
		if entry.Tags == nil {
			entry.Tags = []string{}
		}
	}

	return &doc, nil
}

// Plan reports what Import would do without touching the target:
// how many records would be imported and how many cleared.
func Plan(doc *Document, mode Mode, target Target) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}

	result := &Result{Imported: len(doc.Clips)}

	switch mode {
	case ModeReplace:
		result.Cleared = target.Len()
	case ModeMerge:
	default:
		return nil, fmt.Errorf("unknown import mode %q", mode)
	}

	return result, nil
}

// Import applies a document to the target namespace.
//
// Replace mode clears the namespace first; merge mode leaves existing
// records alone. Every entry is added as a manual create, so import
// never merges duplicates by content. Individual entry failures are
// collected, not fatal.
func Import(ctx context.Context, target Target, doc *Document, mode Mode) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("document cannot be nil")
	}

	result := &Result{}

	switch mode {
	case ModeReplace:
		result.Cleared = target.Len()
		if err := target.Clear(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear namespace: %w", err)
		}
	case ModeMerge:
	default:
		return nil, fmt.Errorf("unknown import mode %q", mode)
	}

	for i, entry := range doc.Clips {
		_, err := target.AddLocal(ctx, entry.Content, engine.AddOptions{
			Manual:    true,
			Type:      entry.Type,
			Source:    entry.Source,
			Pinned:    entry.Pinned,
			CopyCount: entry.CopyCount,
			Tags:      entry.Tags,
		})
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		result.Imported++
	}

	return result, nil
}
