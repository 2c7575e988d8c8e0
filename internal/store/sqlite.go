package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clipd-io/clipd/internal/clip"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLite implements Store on an embedded SQLite database.
//
// The database runs in WAL mode so the CLI can read while the capture
// daemon writes. Each Store instance is scoped to one namespace
// (personal = empty team id); all queries carry the namespace filter
// so independent engines never see each other's rows.
type SQLite struct {
	conn      *sql.DB
	path      string
	namespace string
}

// OpenSQLite opens (creating if needed) the clip database at path,
// scoped to the given namespace.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	st, err := store.OpenSQLite("~/.clipd/clips.db", "")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func OpenSQLite(path, namespace string) (*SQLite, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &SQLite{
		conn:      conn,
		path:      path,
		namespace: namespace,
	}

	// Enable WAL mode for concurrent reads
	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := st.initSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}

	return st, nil
}

// RawDB returns the underlying sql.DB connection.
// This is useful for integrating with other libraries that expect *sql.DB.
func (s *SQLite) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *SQLite) Close() error {
	if s.conn == nil {
		return nil
	}

	// Checkpoint WAL before closing
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates the clips table and secondary indexes.
// Idempotent - safe to call multiple times.
func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clips (
		id TEXT NOT NULL,
		namespace TEXT NOT NULL DEFAULT '',
		local_id TEXT,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		pinned INTEGER NOT NULL DEFAULT 0,
		copy_count INTEGER NOT NULL DEFAULT 1,
		tags TEXT,  -- JSON array
		source TEXT,
		created_at TEXT NOT NULL,
		sync_state TEXT NOT NULL DEFAULT 'pending',
		PRIMARY KEY (namespace, id)
	);

	-- Secondary indexes for the adapter's lookup methods
	CREATE INDEX IF NOT EXISTS idx_clips_type ON clips(namespace, type);
	CREATE INDEX IF NOT EXISTS idx_clips_pinned ON clips(namespace, pinned);
	CREATE INDEX IF NOT EXISTS idx_clips_created ON clips(namespace, created_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Put inserts or replaces a record by id.
func (s *SQLite) Put(ctx context.Context, c *clip.Clip) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid clip: %w", err)
	}

	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
	INSERT INTO clips (
		id, namespace, local_id, content, type, pinned,
		copy_count, tags, source, created_at, sync_state
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(namespace, id) DO UPDATE SET
		local_id = excluded.local_id,
		content = excluded.content,
		type = excluded.type,
		pinned = excluded.pinned,
		copy_count = excluded.copy_count,
		tags = excluded.tags,
		source = excluded.source,
		created_at = excluded.created_at,
		sync_state = excluded.sync_state
	`

	_, err = s.conn.ExecContext(ctx, query,
		c.ID,
		s.namespace,
		c.LocalID,
		c.Content,
		c.Type,
		boolToInt(c.Pinned),
		c.CopyCount,
		string(tagsJSON),
		c.Source,
		c.CreatedAt.Format(time.RFC3339Nano),
		string(c.SyncState),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert clip %s: %w", c.ID, err)
	}

	return nil
}

// Get retrieves a single record by id.
// Returns ErrNotFound if no record exists.
func (s *SQLite) Get(ctx context.Context, id string) (*clip.Clip, error) {
	row := s.conn.QueryRowContext(ctx, selectClause+` WHERE namespace = ? AND id = ?`, s.namespace, id)

	c, err := scanClip(row, s.namespace)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clip %s: %w", id, err)
	}
	return c, nil
}

// GetAll returns every record in the namespace.
func (s *SQLite) GetAll(ctx context.Context) ([]*clip.Clip, error) {
	return s.queryClips(ctx, selectClause+` WHERE namespace = ? ORDER BY created_at ASC`, s.namespace)
}

// Delete removes a record by id. Deleting an absent id returns nil.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM clips WHERE namespace = ? AND id = ?`, s.namespace, id)
	if err != nil {
		return fmt.Errorf("failed to delete clip %s: %w", id, err)
	}
	return nil
}

// GetByType returns all records with the given type tag.
func (s *SQLite) GetByType(ctx context.Context, typ string) ([]*clip.Clip, error) {
	return s.queryClips(ctx,
		selectClause+` WHERE namespace = ? AND type = ? ORDER BY created_at ASC`,
		s.namespace, typ)
}

// GetPinned returns all pinned records.
func (s *SQLite) GetPinned(ctx context.Context) ([]*clip.Clip, error) {
	return s.queryClips(ctx,
		selectClause+` WHERE namespace = ? AND pinned = 1 ORDER BY created_at ASC`,
		s.namespace)
}

// Count returns the total number of records in the namespace.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clips WHERE namespace = ?`, s.namespace).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count clips: %w", err)
	}
	return count, nil
}

const selectClause = `
	SELECT id, local_id, content, type, pinned, copy_count,
	       tags, source, created_at, sync_state
	FROM clips`

func (s *SQLite) queryClips(ctx context.Context, query string, args ...interface{}) ([]*clip.Clip, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clips: %w", err)
	}
	defer rows.Close()

	var clips []*clip.Clip
	for rows.Next() {
		c, err := scanClip(rows, s.namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clip: %w", err)
		}
		clips = append(clips, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clips: %w", err)
	}

	return clips, nil
}

// scanner abstracts over *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanClip reads one clip row.
func scanClip(row scanner, namespace string) (*clip.Clip, error) {
	var c clip.Clip
	var localID, tagsJSON, source sql.NullString
	var pinned int
	var createdAt, syncState string

	err := row.Scan(
		&c.ID,
		&localID,
		&c.Content,
		&c.Type,
		&pinned,
		&c.CopyCount,
		&tagsJSON,
		&source,
		&createdAt,
		&syncState,
	)
	if err != nil {
		return nil, err
	}

	c.LocalID = localID.String
	c.Source = source.String
	c.Pinned = pinned != 0
	c.TeamID = namespace
	c.SyncState = clip.SyncState(syncState)

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		c.CreatedAt = t
	}

	if tagsJSON.Valid && tagsJSON.String != "" && tagsJSON.String != "null" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &c.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	} else {
		c.Tags = []string{}
	}

	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
