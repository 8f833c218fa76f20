package config

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/logging"
)

// ParseFunc turns a file's raw bytes into a flat, dotted-path key set. The
// core stays opaque to any concrete file format; callers supply the parser
// (YAML, TOML, JSON — whatever the deployment uses).
type ParseFunc func(data []byte) (map[string]any, error)

// FileTierSource is a TierStore backed by a file and an fsnotify watch. On
// every write event it re-reads and re-parses the file, replacing its
// entire key set; Store.Reload uses Refresh to diff the result against the
// prior snapshot.
type FileTierSource struct {
	*MapStore

	path    string
	parse   ParseFunc
	log     *logging.Logger
	onWrite func()

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	closed  bool
}

// NewFileTierSource reads path once, parses it, and starts watching it for
// further changes. A callback registered with OnWrite is called after every
// successful re-parse.
func NewFileTierSource(tier Tier, path string, parse ParseFunc, log *logging.Logger) (*FileTierSource, error) {
	if log == nil {
		log = logging.NewDefault()
	}

	f := &FileTierSource{
		MapStore: NewMapStore(tier),
		path:     path,
		parse:    parse,
		log:      log,
	}

	if _, err := f.Refresh(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, kerrors.Config("config.file_source", "failed to start watcher").WithCause(err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, kerrors.Config("config.file_source", "failed to watch file").WithCause(err).WithMeta("path", path)
	}
	f.watcher = watcher

	go f.watchLoop()
	return f, nil
}

// OnWrite registers a callback invoked after each successful re-parse.
func (f *FileTierSource) OnWrite(fn func()) {
	f.mu.Lock()
	f.onWrite = fn
	f.mu.Unlock()
}

// Refresh re-reads and re-parses the file, replacing the tier's key set.
func (f *FileTierSource) Refresh() (map[string]any, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, kerrors.New(kerrors.KindIO, "config.file_source", "read failed").WithCause(err).WithMeta("path", f.path)
	}

	parsed, err := f.parse(data)
	if err != nil {
		return nil, kerrors.Config("config.file_source", "parse failed").WithCause(err).WithMeta("path", f.path)
	}

	f.replaceAll(parsed)
	return parsed, nil
}

func (f *FileTierSource) watchLoop() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if _, err := f.Refresh(); err != nil {
				f.log.Warn("config file refresh failed", zap.Error(err))
				continue
			}
			f.mu.Lock()
			cb := f.onWrite
			f.mu.Unlock()
			if cb != nil {
				cb()
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn("config file watcher error", zap.Error(err))
		}
	}
}

// Close stops the file watch. Idempotent.
func (f *FileTierSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.watcher.Close()
}
