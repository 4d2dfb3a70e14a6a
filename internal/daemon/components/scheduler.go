package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/daemon"
	"github.com/kairoshq/kairos/internal/scheduler"
)

type SchedulerComponent struct {
	cfg       *config.Config
	storeComp *StoreComponent
	coreComp  *CoreComponent
	refresher *scheduler.Refresher
}

func NewSchedulerComponent(cfg *config.Config, storeComp *StoreComponent, coreComp *CoreComponent) *SchedulerComponent {
	return &SchedulerComponent{
		cfg:       cfg,
		storeComp: storeComp,
		coreComp:  coreComp,
	}
}

func (s *SchedulerComponent) Name() string {
	return "Scheduler"
}

func (s *SchedulerComponent) Dependencies() []string {
	return []string{"Store", "Core"}
}

func (s *SchedulerComponent) Init(ctx context.Context) error {
	if !s.cfg.Scheduler.Enabled {
		slog.Info("Scheduler disabled, skipping", "component", s.Name())
		return nil
	}

	worker := s.storeComp.GetWorker()
	if worker == nil {
		return fmt.Errorf("store not initialized")
	}
	aggregator := s.coreComp.GetAggregator()
	if aggregator == nil {
		return fmt.Errorf("core not initialized")
	}

	refresher, err := scheduler.NewRefresher(worker, aggregator, s.cfg.Scheduler)
	if err != nil {
		return fmt.Errorf("failed to create refresher: %w", err)
	}
	s.refresher = refresher

	if err := s.refresher.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize refresher: %w", err)
	}

	slog.Info("Scheduler initialized", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Start(ctx context.Context) error {
	if s.refresher == nil {
		return nil
	}
	return s.refresher.Start(ctx)
}

func (s *SchedulerComponent) Stop(ctx context.Context) error {
	if s.refresher == nil {
		return nil
	}
	return s.refresher.Stop(ctx)
}

func (s *SchedulerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if !s.cfg.Scheduler.Enabled {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: true,
		}, nil
	}

	if s.refresher == nil {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if err := s.refresher.Health(ctx); err != nil {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   err,
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    s.Name(),
		Healthy: true,
	}, nil
}
