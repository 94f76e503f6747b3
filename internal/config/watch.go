package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/ryanuber/go-glob"
)

// Watcher reloads a Config whenever its backing file changes, and
// separately watches a plaintext revocation allowlist file (one identity
// per line) that an operator edits live without restarting the process.
// Modeled on the gateway's pattern of long-lived fsnotify watchers owned by
// a single background goroutine.
type Watcher struct {
	configPath string
	onReload   func(*Config)

	mu         sync.RWMutex
	current    *Config
	revoked    map[string]struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads the initial config and, if cfg.MSL.RevocationAllowlistPath
// is set, the initial revocation allowlist, then starts watching both files
// for writes. onReload, if non-nil, is invoked after every successful
// config reload.
func NewWatcher(configPath string, onReload func(*Config)) (*Watcher, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new fsnotify watcher: %w", err)
	}
	if err := fsw.Add(configPath); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", configPath, err)
	}

	w := &Watcher{
		configPath: configPath,
		onReload:   onReload,
		current:    cfg,
		revoked:    map[string]struct{}{},
		watcher:    fsw,
		done:       make(chan struct{}),
	}

	if cfg.MSL.RevocationAllowlistPath != "" {
		if err := fsw.Add(cfg.MSL.RevocationAllowlistPath); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("config: watch revocation allowlist %s: %w", cfg.MSL.RevocationAllowlistPath, err)
		}
		if err := w.reloadRevocationAllowlist(); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// IsRevoked reports whether identity appears in the revocation allowlist.
// Returns false if no allowlist file is configured.
func (w *Watcher) IsRevoked(identity string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, found := w.revoked[identity]
	return found
}

// SchemeAllowed reports whether scheme matches one of the glob patterns in
// allowed (e.g. "DIFFIE_HELLMAN*"). An empty allowed list permits every
// scheme, matching the gateway's "no allowlist configured means unrestricted"
// convention.
func SchemeAllowed(scheme string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, pattern := range allowed {
		if glob.Glob(pattern, scheme) {
			return true
		}
	}
	return false
}

// Close stops the watcher's background goroutine and releases the
// underlying fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleEvent(event.Name)
		case <-w.watcher.Errors:
			// Surfacing watch errors is the caller's job via logging
			// middleware; the watcher itself keeps running on the last
			// good config rather than terminating the process.
		}
	}
}

func (w *Watcher) handleEvent(name string) {
	w.mu.RLock()
	allowlistPath := w.current.MSL.RevocationAllowlistPath
	w.mu.RUnlock()

	switch name {
	case w.configPath:
		cfg, err := Load(w.configPath)
		if err != nil {
			return
		}
		w.mu.Lock()
		w.current = cfg
		w.mu.Unlock()
		if w.onReload != nil {
			w.onReload(cfg)
		}
	case allowlistPath:
		_ = w.reloadRevocationAllowlist()
	}
}

func (w *Watcher) reloadRevocationAllowlist() error {
	w.mu.RLock()
	path := w.current.MSL.RevocationAllowlistPath
	w.mu.RUnlock()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read revocation allowlist %s: %w", path, err)
	}

	next := map[string]struct{}{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		next[line] = struct{}{}
	}

	w.mu.Lock()
	w.revoked = next
	w.mu.Unlock()
	return nil
}
