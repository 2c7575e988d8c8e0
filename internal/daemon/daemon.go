// Package daemon provides the capture daemon that feeds the
// reconciliation engine.
//
// The daemon:
//  1. Polls the OS clipboard and captures new text automatically
//  2. Watches an inbox directory; clip JSON files dropped there are
//     imported as manual clips
//  3. Handles graceful shutdown
//
// Remote event delivery is separate (internal/remote); the daemon only
// produces local captures.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clipd-io/clipd/internal/clip"
	"github.com/clipd-io/clipd/internal/engine"
)

// Config holds configuration for the daemon.
type Config struct {
	// PollInterval is how often to sample the clipboard
	PollInterval time.Duration

	// DebounceInterval is how long to wait before processing inbox
	// file changes. This batches rapid updates together
	DebounceInterval time.Duration

	// InboxDir is the directory watched for dropped clip files.
	// Empty disables the inbox watcher
	InboxDir string

	// RemoveImported deletes inbox files after a successful import
	RemoveImported bool

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     500 * time.Millisecond,
		DebounceInterval: 100 * time.Millisecond,
		RemoveImported:   true,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates clipboard polling and inbox watching.
type Daemon struct {
	engine *engine.Engine
	source Source
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> timestamp
	changeQueueMu sync.Mutex

	lastContent string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance.
//
// The daemon requires:
//   - eng: the reconciliation engine for the namespace being captured
//   - source: the clipboard reader (nil disables polling, leaving only
//     the inbox watcher)
//
// Use Start() to begin capturing.
func New(eng *engine.Engine, source Source, config *Config) (*Daemon, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if source == nil && config.InboxDir == "" {
		return nil, fmt.Errorf("nothing to do: no clipboard source and no inbox directory")
	}

	var watcher *fsnotify.Watcher
	if config.InboxDir != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:      eng,
		source:      source,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting capture daemon")

	if d.watcher != nil {
		if err := os.MkdirAll(d.config.InboxDir, 0755); err != nil {
			return fmt.Errorf("failed to create inbox directory: %w", err)
		}
		if err := d.watcher.Add(d.config.InboxDir); err != nil {
			return fmt.Errorf("failed to watch inbox directory: %w", err)
		}
		d.config.Logger.Printf("Watching inbox: %s", d.config.InboxDir)

		d.wg.Add(2)
		go d.watchInboxEvents()
		go d.processChangeQueue()
	}

	if d.source != nil {
		d.wg.Add(1)
		go d.pollClipboard()
	}

	// Wait for shutdown
	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping capture daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Capture daemon stopped")
	return nil
}

// pollClipboard samples the clipboard and captures new content.
func (d *Daemon) pollClipboard() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.captureOnce()
		}
	}
}

// captureOnce reads the clipboard and hands changed content to the
// engine. Gate rejections (incognito, too short, nil result) are
// silent no-ops by contract.
func (d *Daemon) captureOnce() {
	content, err := d.source.Read(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Warning: clipboard read failed: %v", err)
		return
	}

	if content == d.lastContent {
		return
	}
	d.lastContent = content

	rec, err := d.engine.AddLocal(d.ctx, content, engine.AddOptions{Source: "clipboard"})
	if err != nil {
		d.config.Logger.Printf("Error capturing clip: %v", err)
		return
	}
	if rec != nil {
		d.config.Logger.Printf("Captured clip %s (%s, %d bytes)", rec.ID, rec.Type, len(rec.Content))
	}
}

// watchInboxEvents monitors filesystem events and queues changes.
func (d *Daemon) watchInboxEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create and Write
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// Only process .json files
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			d.config.Logger.Printf("Inbox event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue imports queued inbox files with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges imports files that have been queued for long
// enough.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()

	for path, queuedAt := range d.changeQueue {
		// Only process if enough time has passed (debouncing)
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}

		if err := d.importInboxFile(path); err != nil {
			d.config.Logger.Printf("Error importing %s: %v", path, err)
		}

		delete(d.changeQueue, path)
	}
}

// importInboxFile parses a dropped clip file and adds it as a manual
// clip. Manual because dropping a file is an explicit user action;
// incognito and duplicate merging don't apply.
func (d *Daemon) importInboxFile(path string) error {
	// The file may already be gone (editor temp files, rapid deletes)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	c, err := clip.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read inbox clip: %w", err)
	}

	rec, err := d.engine.AddLocal(d.ctx, c.Content, engine.AddOptions{
		Manual: true,
		Type:   c.Type,
		Source: c.Source,
		Pinned: c.Pinned,
		Tags:   c.Tags,
	})
	if err != nil {
		return fmt.Errorf("failed to import inbox clip: %w", err)
	}

	d.config.Logger.Printf("Imported inbox clip %s from %s", rec.ID, filepath.Base(path))

	if d.config.RemoveImported {
		if err := os.Remove(path); err != nil {
			d.config.Logger.Printf("Warning: failed to remove imported file %s: %v", path, err)
		}
	}

	return nil
}
