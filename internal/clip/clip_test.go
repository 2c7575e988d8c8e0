package clip

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"http url", "http://example.com/page", "url"},
		{"https url", "https://example.com", "url"},
		{"url with leading whitespace", "  https://example.com", "url"},
		{"go snippet", "func main() {\n\tfmt.Println(1)\n}", "code"},
		{"braces without newline", "map{key}", "text"},
		{"plain text", "pick up milk", "text"},
		{"empty", "", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassifier(tt.content); got != tt.want {
				t.Errorf("DefaultClassifier(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Clip{
		ID:        "c1",
		Content:   "hello",
		Type:      "text",
		CopyCount: 1,
		CreatedAt: time.Now(),
	}

	tests := []struct {
		name    string
		mutate  func(*Clip)
		wantErr string
	}{
		{"valid", func(c *Clip) {}, ""},
		{"missing id", func(c *Clip) { c.ID = "" }, "id"},
		{"missing content", func(c *Clip) { c.Content = "" }, "content"},
		{"missing type", func(c *Clip) { c.Type = "" }, "type"},
		{"zero copy count", func(c *Clip) { c.CopyCount = 0 }, "copy_count"},
		{"zero created_at", func(c *Clip) { c.CreatedAt = time.Time{} }, "created_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	c := Clip{Content: "hello"}
	c.SetDefaults()

	if c.ID == "" {
		t.Error("ID not generated")
	}
	if c.LocalID != c.ID {
		t.Errorf("LocalID = %q, want %q", c.LocalID, c.ID)
	}
	if c.Type != "text" {
		t.Errorf("Type = %q, want text", c.Type)
	}
	if c.CopyCount != 1 {
		t.Errorf("CopyCount = %d, want 1", c.CopyCount)
	}
	if c.Tags == nil {
		t.Error("Tags = nil, want empty slice")
	}
	if c.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if c.SyncState != SyncPending {
		t.Errorf("SyncState = %q, want %q", c.SyncState, SyncPending)
	}

	// Existing values survive
	existing := Clip{ID: "keep", Type: "url", CopyCount: 5, SyncState: SyncAcked}
	existing.SetDefaults()
	if existing.ID != "keep" || existing.Type != "url" || existing.CopyCount != 5 || existing.SyncState != SyncAcked {
		t.Errorf("SetDefaults overwrote populated fields: %+v", existing)
	}
	if existing.LocalID != "" {
		t.Errorf("LocalID = %q for pre-set id, want empty", existing.LocalID)
	}
}

func TestClone(t *testing.T) {
	orig := &Clip{ID: "c1", Content: "hello", Tags: []string{"a", "b"}}

	dup := orig.Clone()
	dup.Content = "changed"
	dup.Tags[0] = "z"

	if orig.Content != "hello" {
		t.Error("Clone shares Content with original")
	}
	if orig.Tags[0] != "a" {
		t.Error("Clone shares Tags backing array with original")
	}
}

func TestHasTag(t *testing.T) {
	c := &Clip{Tags: []string{"work", "urgent"}}
	if !c.HasTag("work") {
		t.Error("HasTag(work) = false")
	}
	if c.HasTag("missing") {
		t.Error("HasTag(missing) = true")
	}
	if (&Clip{}).HasTag("any") {
		t.Error("HasTag on empty tags = true")
	}
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	orig := &Clip{
		ID:        "c1",
		Content:   "round trip me",
		Type:      "text",
		Pinned:    true,
		CopyCount: 3,
		Tags:      []string{"a"},
		Source:    "test",
		CreatedAt: time.Now().Truncate(time.Second),
		SyncState: SyncAcked,
	}

	if err := WriteFile(dir, orig); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	got, err := ReadFile(filepath.Join(dir, orig.Filename()))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}

	if got.ID != orig.ID || got.Content != orig.Content || !got.Pinned ||
		got.CopyCount != 3 || !got.HasTag("a") || got.SyncState != SyncAcked {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, orig.CreatedAt)
	}
}

func TestReadFileInvalid(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadFile(filepath.Join(dir, "absent.json")); err == nil {
		t.Error("ReadFile(absent) succeeded")
	}
}

func TestReadFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.json")

	// A minimal inbox drop: content only
	writeTestFile(t, path, `{"content": "dropped in"}`)

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if got.ID == "" || got.Type != "text" || got.CopyCount != 1 {
		t.Errorf("defaults not applied: %+v", got)
	}
}
