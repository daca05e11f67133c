package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store is the live, hot-reloadable view of every ServerConfig found in
// a directory. The teacher only reads its backend configs once at
// startup (reload happens only via its /reload HTTP endpoint); here Load
// can be called again at any time, and an fsnotify watch on top calls it
// whenever a file in the directory changes, so editing a server's JSON
// file on disk is picked up without any reload request.
type Store struct {
	dir    string
	log    *zap.Logger
	mu     sync.RWMutex
	byID   map[string]ServerConfig
	onLoad func([]ServerConfig)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

func NewStore(dir string, log *zap.Logger) *Store {
	return &Store{
		dir:    dir,
		log:    log,
		byID:   make(map[string]ServerConfig),
		stopCh: make(chan struct{}),
	}
}

// Load reads every config file in the store's directory and replaces
// the in-memory snapshot. It returns validation errors but still
// updates the snapshot with whatever configs did parse, mirroring the
// teacher's VerifyConfigs call which collects errors without aborting
// the load.
func (s *Store) Load() ([]ServerConfig, []error) {
	cfgs, err := ReadServerConfigs(s.dir)
	if err != nil {
		return nil, []error{err}
	}
	errs := VerifyConfigs(cfgs)

	byID := make(map[string]ServerConfig, len(cfgs))
	for _, cfg := range cfgs {
		byID[cfg.ID] = cfg
	}

	s.mu.Lock()
	s.byID = byID
	s.mu.Unlock()

	if s.onLoad != nil {
		s.onLoad(cfgs)
	}
	return cfgs, errs
}

func (s *Store) Get(id string) (ServerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.byID[id]
	return cfg, ok
}

func (s *Store) All() []ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ServerConfig, 0, len(s.byID))
	for _, cfg := range s.byID {
		out = append(out, cfg)
	}
	return out
}

// OnLoad registers a callback invoked after every successful Load -
// the Lifecycle Manager uses this to pick up renamed/removed servers.
func (s *Store) OnLoad(fn func([]ServerConfig)) {
	s.onLoad = fn
}

// Watch starts an fsnotify watch on the store's directory and calls
// Load whenever a file changes, until Close is called.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting config watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", s.dir, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if _, errs := s.Load(); len(errs) > 0 {
					for _, e := range errs {
						s.log.Warn("config reload produced an error", zap.Error(e))
					}
				} else {
					s.log.Info("reloaded server configs", zap.String("trigger", event.Name))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("config watcher error", zap.Error(err))
			case <-s.stopCh:
				return
			}
		}
	}()
	return nil
}

func (s *Store) Close() error {
	close(s.stopCh)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
