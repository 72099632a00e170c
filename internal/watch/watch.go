// Package watch tails log files in a set of directories and hands newly
// appended text to a handler.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultExtensions are the file suffixes watched when none are configured.
var DefaultExtensions = []string{".log", ".err", ".out"}

const (
	defaultDebounce = 500 * time.Millisecond
	defaultMaxRead  = 1 << 20
)

// Handler receives text appended to a watched file.
type Handler func(ctx context.Context, path, text string)

// Config holds watcher settings.
type Config struct {
	Dirs       []string
	Extensions []string      // Default: .log .err .out
	Debounce   time.Duration // Quiet period before a changed file is read (default: 500ms)
	MaxRead    int64         // Max bytes handed over per change; older bytes are skipped (default: 1MiB)

	// FromStart reads files that already exist when watching starts from the
	// beginning instead of from their current end.
	FromStart bool

	Logger *zap.Logger
}

// Stats counts watcher activity.
type Stats struct {
	Events    int
	Triggers  int
	Truncated int
	Errors    int
}

// Watcher watches directories for writes to log files.
type Watcher struct {
	mu      sync.Mutex
	cfg     Config
	fsw     *fsnotify.Watcher
	handler Handler
	log     *zap.Logger
	offsets map[string]int64     // path -> bytes already handed over
	pending map[string]time.Time // path -> last change
	ready   map[string]struct{}  // settled paths waiting for the worker
	wake    chan struct{}
	stats   Stats
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	now     func() time.Time
}

// New creates a Watcher. Call Start or Run to begin watching.
func New(cfg Config, handler Handler) (*Watcher, error) {
	if len(cfg.Dirs) == 0 {
		return nil, fmt.Errorf("at least one directory is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.MaxRead <= 0 {
		cfg.MaxRead = defaultMaxRead
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		handler: handler,
		log:     log,
		offsets: make(map[string]int64),
		pending: make(map[string]time.Time),
		ready:   make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		now:     time.Now,
	}, nil
}

// Start adds the directories and begins watching in a goroutine. Missing
// directories are skipped with a warning; it fails only if none can be watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	watched := 0
	for _, dir := range w.cfg.Dirs {
		if err := w.fsw.Add(dir); err != nil {
			w.log.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		w.seed(dir)
		watched++
		w.log.Info("watching directory", zap.String("dir", dir))
	}
	if watched == 0 {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		_ = w.fsw.Close()
		close(w.doneCh)
		return fmt.Errorf("none of the directories could be watched: %s", strings.Join(w.cfg.Dirs, ", "))
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop and any running
// handler to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.fsw.Close(); err != nil {
		w.log.Warn("error closing file watcher", zap.Error(err))
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// Stats returns a snapshot of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// seed records the current size of existing files so only new text is read.
func (w *Watcher) seed(dir string) {
	if w.cfg.FromStart {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() || !w.matches(path) {
			continue
		}
		if info, err := e.Info(); err == nil {
			w.offsets[path] = info.Size()
		}
	}
}

func (w *Watcher) matches(path string) bool {
	for _, ext := range w.cfg.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (w *Watcher) run(ctx context.Context) {
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx, quit)
	}()
	defer func() {
		close(quit)
		wg.Wait()
		close(w.doneCh)
	}()

	tick := w.cfg.Debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.matches(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Events++

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.pending[event.Name] = w.now()
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.offsets, event.Name)
		delete(w.pending, event.Name)
	}
}

// processSettled queues files that have been quiet for the debounce period
// and wakes the worker. It never blocks the event loop.
func (w *Watcher) processSettled() {
	w.mu.Lock()
	now := w.now()
	queued := 0
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.cfg.Debounce {
			w.ready[path] = struct{}{}
			delete(w.pending, path)
			queued++
		}
	}
	w.mu.Unlock()

	if queued > 0 {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// work calls the handler off the event loop, one file at a time. Files that
// settle while a handler runs are read in a single pass once it returns.
func (w *Watcher) work(ctx context.Context, quit <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-w.wake:
			w.drainReady(ctx)
		}
	}
}

// drainReady reads every queued file and hands new text to the handler.
func (w *Watcher) drainReady(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.ready))
	for path := range w.ready {
		paths = append(paths, path)
	}
	clear(w.ready)
	w.mu.Unlock()
	sort.Strings(paths)

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		text, err := w.readNew(path)
		if err != nil {
			if !os.IsNotExist(err) {
				w.log.Warn("failed to read watched file", zap.String("path", path), zap.Error(err))
				w.mu.Lock()
				w.stats.Errors++
				w.mu.Unlock()
			}
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		w.mu.Lock()
		w.stats.Triggers++
		w.mu.Unlock()
		w.log.Debug("log file changed", zap.String("path", path), zap.Int("bytes", len(text)))
		w.handler(ctx, path, text)
	}
}

// readNew returns the bytes appended to path since the last read. A file
// that shrank was truncated or rotated and is read from the start.
func (w *Watcher) readNew(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	w.mu.Lock()
	off := w.offsets[path]
	if size < off {
		off = 0
		w.stats.Truncated++
	}
	w.offsets[path] = size
	w.mu.Unlock()

	if size == off {
		return "", nil
	}
	if size-off > w.cfg.MaxRead {
		off = size - w.cfg.MaxRead
	}

	buf := make([]byte, size-off)
	n, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return "", err
	}
	return string(buf[:n]), nil
}
