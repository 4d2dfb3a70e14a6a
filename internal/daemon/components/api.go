package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kairoshq/kairos/internal/api"
	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/daemon"
)

type APIComponent struct {
	cfg       *config.Config
	storeComp *StoreComponent
	coreComp  *CoreComponent
	server    *api.Server
}

func NewAPIComponent(cfg *config.Config, storeComp *StoreComponent, coreComp *CoreComponent) *APIComponent {
	return &APIComponent{
		cfg:       cfg,
		storeComp: storeComp,
		coreComp:  coreComp,
	}
}

func (a *APIComponent) Name() string {
	return "API"
}

func (a *APIComponent) Dependencies() []string {
	return []string{"Store", "Core"}
}

func (a *APIComponent) Init(ctx context.Context) error {
	eng := a.coreComp.GetEngine()
	if eng == nil {
		return fmt.Errorf("core not initialized")
	}
	orch := a.coreComp.GetOrchestrator()
	worker := a.storeComp.GetWorker()
	if worker == nil {
		return fmt.Errorf("store not initialized")
	}

	a.server = api.NewServer(a.cfg.Server, eng, orch, worker)
	if err := a.server.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize API server: %w", err)
	}

	slog.Info("API initialized", "component", a.Name())
	return nil
}

func (a *APIComponent) Start(ctx context.Context) error {
	if a.server == nil {
		return fmt.Errorf("API server not initialized")
	}
	return a.server.Start(ctx)
}

func (a *APIComponent) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Stop(ctx)
}

func (a *APIComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if a.server == nil {
		return &daemon.ComponentHealth{
			Name:    a.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if err := a.server.Health(ctx); err != nil {
		return &daemon.ComponentHealth{
			Name:    a.Name(),
			Healthy: false,
			Error:   err,
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    a.Name(),
		Healthy: true,
	}, nil
}
