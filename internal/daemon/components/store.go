package components

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/daemon"
	"github.com/kairoshq/kairos/internal/store"
)

type StoreComponent struct {
	storeCfg    *config.StoreConfig
	worker      *store.Worker
	initialized bool
	started     bool
	mu          sync.RWMutex
}

func NewStoreComponent(storeCfg *config.StoreConfig) *StoreComponent {
	return &StoreComponent{
		storeCfg: storeCfg,
	}
}

func (s *StoreComponent) Name() string {
	return "Store"
}

func (s *StoreComponent) Dependencies() []string {
	return []string{}
}

func (s *StoreComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("store init cancelled: %w", ctx.Err())
	default:
	}

	basePath := ""
	lockTimeoutValue := ""
	lockRetryValue := ""
	inboxSize := 0
	if s.storeCfg != nil {
		basePath = s.storeCfg.Path
		lockTimeoutValue = s.storeCfg.LockTimeout
		lockRetryValue = s.storeCfg.LockRetry
		inboxSize = s.storeCfg.InboxSize
	}

	lockTimeout, err := config.DurationOrDefault(lockTimeoutValue, config.DefaultStoreLockTimeout)
	if err != nil {
		return fmt.Errorf("parse store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(lockRetryValue, config.DefaultStoreLockRetry)
	if err != nil {
		return fmt.Errorf("parse store lock retry: %w", err)
	}
	if inboxSize <= 0 {
		inboxSize = config.DefaultStoreInboxSize
	}

	worker, err := store.NewWorker(basePath, store.RuntimeConfig{
		LockTimeout: lockTimeout,
		LockRetry:   lockRetry,
		InboxSize:   inboxSize,
	})
	if err != nil {
		if strings.Contains(err.Error(), "is locked by another instance") {
			return fmt.Errorf("data directory is locked by another instance: %w", err)
		}
		return fmt.Errorf("failed to init store worker: %w", err)
	}

	s.worker = worker
	s.initialized = true
	slog.Info("Store initialized", "component", s.Name())
	return nil
}

func (s *StoreComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("store not initialized")
	}

	s.worker.Start()
	s.started = true
	slog.Info("Store started", "component", s.Name())
	return nil
}

func (s *StoreComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		slog.Info("Store not started, skipping stop", "component", s.Name())
		return nil
	}

	s.worker.Stop()
	s.started = false
	slog.Info("Store stopped", "component", s.Name())
	return nil
}

func (s *StoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !s.started || !s.worker.IsRunning() {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("loop not running"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    s.Name(),
		Healthy: true,
	}, nil
}

func (s *StoreComponent) GetWorker() *store.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worker
}
