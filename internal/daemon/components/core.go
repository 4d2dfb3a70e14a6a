package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kairoshq/kairos/internal/adapter"
	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/daemon"
	"github.com/kairoshq/kairos/internal/engine"
	"github.com/kairoshq/kairos/internal/importance"
	"github.com/kairoshq/kairos/internal/intent"
	"github.com/kairoshq/kairos/internal/orchestrator"
	"github.com/kairoshq/kairos/internal/presence"
	"github.com/kairoshq/kairos/internal/reputation"
)

// CoreComponent assembles the coordination pipeline: presence aggregation,
// reputation, intent validation, importance assessment, orchestration, and
// the lifecycle engine on top.
type CoreComponent struct {
	cfg          *config.Config
	storeComp    *StoreComponent
	adaptersComp *AdaptersComponent

	mu         sync.RWMutex
	aggregator *presence.Aggregator
	reputation *reputation.Engine
	orch       *orchestrator.Orchestrator
	engine     *engine.Engine
}

func NewCoreComponent(cfg *config.Config, storeComp *StoreComponent, adaptersComp *AdaptersComponent) *CoreComponent {
	return &CoreComponent{
		cfg:          cfg,
		storeComp:    storeComp,
		adaptersComp: adaptersComp,
	}
}

func (c *CoreComponent) Name() string {
	return "Core"
}

func (c *CoreComponent) Dependencies() []string {
	return []string{"Store", "Adapters"}
}

func (c *CoreComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	worker := c.storeComp.GetWorker()
	if worker == nil {
		return fmt.Errorf("store not initialized")
	}

	aggregator, err := presence.NewAggregator(c.adaptersComp.PresenceAdapters(), c.cfg.Presence)
	if err != nil {
		return fmt.Errorf("init presence aggregator: %w", err)
	}

	rep := reputation.NewEngine(worker, c.cfg.Reputation)

	validator := intent.NewValidator(
		c.cfg.Intent,
		adapter.NewStoreContactVerifier(worker),
		intent.HeuristicScorer{},
	)

	orch, err := orchestrator.New(worker, aggregator, rep, c.adaptersComp.SessionAdapters(), c.cfg.Orchestrator)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	eng := engine.New(worker, validator, rep, importance.NewAssessor(), aggregator, orch)

	// The static adapter emits join/leave events in-process; route them
	// straight into the orchestrator.
	if static := c.adaptersComp.Static(); static != nil {
		static.SetEventHandler(orch.HandleSessionEvent)
	}

	c.aggregator = aggregator
	c.reputation = rep
	c.orch = orch
	c.engine = eng

	slog.Info("Core initialized", "component", c.Name())
	return nil
}

func (c *CoreComponent) Start(ctx context.Context) error {
	return nil
}

func (c *CoreComponent) Stop(ctx context.Context) error {
	return nil
}

func (c *CoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.engine == nil {
		return &daemon.ComponentHealth{
			Name:    c.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    c.Name(),
		Healthy: true,
	}, nil
}

func (c *CoreComponent) GetEngine() *engine.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

func (c *CoreComponent) GetOrchestrator() *orchestrator.Orchestrator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orch
}

func (c *CoreComponent) GetAggregator() *presence.Aggregator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aggregator
}
