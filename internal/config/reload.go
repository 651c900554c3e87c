package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloadable is implemented by components that can update their config at runtime.
type Reloadable interface {
	// OnConfigReload is called when the configuration has changed.
	// Implementations apply relevant changes and return an error if the
	// component cannot update itself. The reloader logs errors but
	// continues notifying other subscribers.
	OnConfigReload(newCfg *Config) error
}

// Reloader watches for config changes and coordinates reloads. It supports
// SIGHUP signals and optional file-system watching with debounce. Writes
// that arrive as replace-renames (editors, configmap updates) are handled
// by re-adding the watch after each event.
type Reloader struct {
	configPath  string
	current     atomic.Pointer[Config]
	subscribers []Reloadable
	logger      *slog.Logger
	debounce    time.Duration
	watchFile   bool
	onResult    func(success bool)

	mu      sync.RWMutex
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
	stopped chan struct{}
	sigChan chan os.Signal
}

// NewReloader creates a Reloader for the given config file path. The
// initial config becomes the current one.
func NewReloader(configPath string, initialCfg *Config, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reloader{
		configPath: configPath,
		logger:     logger,
		debounce:   initialCfg.Reload.Debounce.Duration,
		watchFile:  initialCfg.Reload.WatchesFile(),
		stopped:    make(chan struct{}),
	}
	r.current.Store(initialCfg)
	return r
}

// Register adds a component to receive reload notifications.
// Must be called before Start.
func (r *Reloader) Register(sub Reloadable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, sub)
}

// OnResult sets a callback invoked after every reload attempt with its
// outcome, for metrics. Must be called before Start.
func (r *Reloader) OnResult(fn func(success bool)) {
	r.onResult = fn
}

// Current returns the current active configuration. Safe for concurrent use.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// Start begins watching for config changes via SIGHUP and optional file
// watching. The watch loop runs until the context is cancelled or Stop is
// called.
func (r *Reloader) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.sigChan = make(chan os.Signal, 1)
	signal.Notify(r.sigChan, syscall.SIGHUP)

	if r.watchFile {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		r.watcher = watcher

		if err := watcher.Add(r.configPath); err != nil {
			watcher.Close()
			return fmt.Errorf("watching config file %q: %w", r.configPath, err)
		}
		r.logger.Info("config file watcher started", "path", r.configPath, "debounce", r.debounce)
	}

	go r.run(ctx)
	return nil
}

// Stop shuts down the reloader, stopping signal and file watchers.
func (r *Reloader) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.stopped
}

// Reload manually triggers a config reload. It reads the config file,
// validates it, computes a diff, logs warnings for non-reloadable changes,
// and notifies subscribers. Returns an error if the new config is invalid
// (the old config is retained).
func (r *Reloader) Reload() error {
	r.logger.Info("config reload triggered", "path", r.configPath)

	newCfg, err := Load(r.configPath)
	if err != nil {
		r.logger.Error("config reload failed: invalid config, keeping current",
			"error", err,
			"path", r.configPath,
		)
		r.notifyResult(false)
		return fmt.Errorf("config reload: %w", err)
	}

	oldCfg := r.current.Load()
	changes := Diff(oldCfg, newCfg)

	if len(changes) == 0 {
		r.logger.Info("config reload: no changes detected")
		r.notifyResult(true)
		return nil
	}

	hasNonReloadable := false
	for _, c := range changes {
		if c.Reloadable {
			r.logger.Info("config change detected",
				"field", c.Field,
				"old", fmt.Sprintf("%v", c.OldValue),
				"new", fmt.Sprintf("%v", c.NewValue),
				"reloadable", true,
			)
		} else {
			hasNonReloadable = true
			r.logger.Warn("config change requires restart (ignored)",
				"field", c.Field,
				"old", fmt.Sprintf("%v", c.OldValue),
				"new", fmt.Sprintf("%v", c.NewValue),
				"reloadable", false,
			)
		}
	}
	if hasNonReloadable {
		r.logger.Warn("some config changes require a restart to take effect")
	}

	r.current.Store(newCfg)

	r.mu.RLock()
	subs := make([]Reloadable, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.OnConfigReload(newCfg); err != nil {
			r.logger.Error("subscriber reload failed",
				"error", err,
				"subscriber", fmt.Sprintf("%T", sub),
			)
		}
	}

	r.logger.Info("config_reloaded",
		"changes", len(changes),
		"path", r.configPath,
	)
	r.notifyResult(true)
	return nil
}

func (r *Reloader) notifyResult(success bool) {
	if r.onResult != nil {
		r.onResult(success)
	}
}

// run is the main loop that listens for SIGHUP and file change events.
func (r *Reloader) run(ctx context.Context) {
	defer close(r.stopped)
	defer signal.Stop(r.sigChan)
	if r.watcher != nil {
		defer r.watcher.Close()
	}

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case sig := <-r.sigChan:
			r.logger.Info("received signal, reloading config", "signal", sig)
			if err := r.Reload(); err != nil {
				r.logger.Error("SIGHUP reload failed", "error", err)
			}

		case event, ok := <-r.watcherEvents():
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.NewTimer(r.debounce)
				debounceCh = debounceTimer.C
			}

		case err, ok := <-r.watcherErrors():
			if !ok {
				return
			}
			r.logger.Error("file watcher error", "error", err)

		case <-debounceCh:
			debounceCh = nil
			debounceTimer = nil
			r.logger.Info("config file changed, reloading", "path", r.configPath)
			if r.watcher != nil {
				// The file may have been replaced; errors here mean it is
				// temporarily gone and the next event re-adds it.
				_ = r.watcher.Add(r.configPath)
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("file watch reload failed", "error", err)
			}
		}
	}
}

// watcherEvents returns the watcher's event channel, or a nil channel if no watcher.
func (r *Reloader) watcherEvents() <-chan fsnotify.Event {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Events
}

// watcherErrors returns the watcher's error channel, or a nil channel if no watcher.
func (r *Reloader) watcherErrors() <-chan error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Errors
}
