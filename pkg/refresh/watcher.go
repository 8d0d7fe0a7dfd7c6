package refresh

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"workbench-hq/keywarden/pkg/telemetry/logging"
)

// DefaultDebounce is how long the watcher waits after the last file
// event before reloading.
const DefaultDebounce = 500 * time.Millisecond

// WatcherConfig configures the key database file watcher.
type WatcherConfig struct {
	// Path is the key database file to watch.
	Path string

	// Debounce is the quiet period required after the last write
	// before a reload fires. Default: 500ms.
	Debounce time.Duration

	// Timeout bounds each reload. Default: 30s.
	Timeout time.Duration

	// Logger receives watch events. nil means no logging.
	Logger *logging.Logger
}

// Watcher reloads the key registry when the key database file changes
// on disk, so keys added by the CLI or a provisioning script are
// picked up without waiting for the next scheduled reload.
//
// The watcher registers on the file's parent directory rather than
// the file itself: SQLite in WAL mode writes through sibling -wal and
// -shm files, and some editors replace files by rename.
type Watcher struct {
	refresher Refresher
	watcher   *fsnotify.Watcher
	path      string
	base      string
	debounce  *Debouncer
	timeout   time.Duration
	logger    *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the database file at cfg.Path.
// Start must be called to begin watching.
func NewWatcher(refresher Refresher, cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watch path is empty")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRefreshTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		refresher: refresher,
		watcher:   fsw,
		path:      abs,
		base:      filepath.Base(abs),
		debounce:  NewDebouncer(cfg.Debounce),
		timeout:   cfg.Timeout,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start registers with the filesystem and begins watching in the
// background. The watched directory must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch directory %q: %w", filepath.Dir(w.path), err)
	}

	w.running = true
	go w.loop()

	w.logger.Info("key database watcher started",
		"path", w.path,
		"debounce_ms", w.debounce.interval.Milliseconds(),
	)
	return nil
}

// loop processes filesystem events until stopped.
func (w *Watcher) loop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event) {
				continue
			}
			w.logger.Debug("key database changed",
				"file", filepath.Base(event.Name),
				"op", event.Op.String(),
			)
			w.debounce.Trigger(w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Keep watching despite errors.
			w.logger.Error("key database watch error", "error", err)
		}
	}
}

// matches reports whether an event concerns the watched database file
// or one of its SQLite WAL siblings.
func (w *Watcher) matches(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	return base == w.base || strings.HasPrefix(base, w.base+"-")
}

// reload runs one refresh after the debounce quiet period.
func (w *Watcher) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	start := time.Now()
	if err := w.refresher.Refresh(ctx); err != nil {
		w.logger.Error("file-triggered refresh failed", "error", err)
		return
	}
	w.logger.Info("registry reloaded after file change",
		"path", w.path,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop halts watching and cancels any pending debounced reload.
// Stop is safe to call on a watcher that never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return w.watcher.Close()
	}
	w.running = false

	close(w.stopCh)
	<-w.doneCh
	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.logger.Info("key database watcher stopped")
	return nil
}

// Debouncer collapses bursts of events into a single callback fired
// after a quiet period. SQLite touches the database, WAL, and shm
// files in quick succession on every write.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger arms the debouncer. The callback fires once the interval
// passes without another Trigger; each call resets the clock.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

// fire runs the armed callback unless the debouncer was stopped.
func (d *Debouncer) fire() {
	d.mu.Lock()
	cb := d.callback
	stopped := d.stopped
	d.mu.Unlock()

	if cb != nil && !stopped {
		cb()
	}
}

// Stop cancels any pending callback. Further Triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
