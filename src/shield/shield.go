package shield

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"resilient-feed/src/breaker"
	"resilient-feed/src/cache"
	"resilient-feed/src/config"
	"resilient-feed/src/factories"
	"resilient-feed/src/grpc_control"
	"resilient-feed/src/health"
	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/metrics"
	"resilient-feed/src/models"
	"resilient-feed/src/orchestrator"
	"resilient-feed/src/realtime"
	"resilient-feed/src/registry"
	"resilient-feed/src/rest"
	"resilient-feed/src/transports"
)

// -----------------------------------------------------------------------------
// Core Application
// -----------------------------------------------------------------------------

// Shield owns every resilience service and their wiring. Optional parts are
// nil when disabled in config.
type Shield struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	Metrics      *metrics.Provider
	Registry     *registry.Registry
	Cache        *cache.MemoryCache
	Breakers     *breaker.Manager
	Fetcher      *transports.HTTPFetcher
	Orchestrator *orchestrator.Orchestrator
	Monitor      *health.Monitor

	Realtime  *realtime.Client          // nil when realtime is disabled
	Publisher interfaces.IPublisher     // nil when NATS is disabled
	StatusAPI *rest.StatusAPI           // nil when the status api is disabled
	GRPC      *grpc_control.GRPCService // nil when gRPC is disabled

	mu      sync.Mutex
	started bool
	unhooks []func() // undo the fan-out registered by Start
}

// -----------------------------------------------------------------------------

// New builds and wires every service. Nothing runs until Start.
func New(cfg *config.Config, log *logger.Logger) (*Shield, error) {
	if log == nil {
		log = logger.NewLogger(cfg, cfg.Name)
	}

	s := &Shield{Name: cfg.Name, Config: cfg, Logger: log}

	provider, err := metrics.NewProvider(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	s.Metrics = provider

	factory := factories.NewServiceFactory(cfg, log, provider.Metrics)

	// 1. Core request path
	if s.Registry, err = factory.CreateRegistry(); err != nil {
		return nil, err
	}
	if s.Fetcher, err = factory.CreateFetcher(); err != nil {
		return nil, err
	}
	s.Cache = factory.CreateCache()
	s.Breakers = factory.CreateBreakers(s.Registry)
	s.Orchestrator = factory.CreateOrchestrator(s.Registry, s.Cache, s.Breakers, s.Fetcher)
	s.Monitor = factory.CreateMonitor(s.Registry, s.Fetcher)

	// 2. Optional services
	if cfg.Realtime.Enabled {
		if s.Realtime, err = factory.CreateRealtimeClient(s.Fetcher); err != nil {
			return nil, err
		}
	}
	s.Publisher = factory.CreatePublisher()

	if cfg.GRPC.Enabled {
		control := grpc_control.NewControlService(s.controlDeps(), log)
		if s.GRPC, err = grpc_control.NewGRPCService(cfg.GRPC, log, control); err != nil {
			return nil, err
		}
	}
	if cfg.StatusAPI.Enabled {
		s.StatusAPI = rest.NewStatusAPI(cfg.StatusAPI, s.statusDeps(), log)
	}

	return s, nil
}

// -----------------------------------------------------------------------------

// wire registers the event fan-out. It lives from Start to Stop.
func (s *Shield) wire() {
	s.hook(s.Monitor.OnHealthReport(func(report models.MHealthReport) {
		s.Logger.Info("%s : health cycle done, overall %s over %d endpoints", s.Name, report.Overall, len(report.Records))
	}), s.Monitor.Unsubscribe)

	if s.Publisher != nil {
		s.hook(s.Breakers.OnStateChange(s.Publisher.OnBreakerTransition), s.Breakers.Unsubscribe)
		s.hook(s.Monitor.OnHealthChanged(s.Publisher.OnHealthChanged), s.Monitor.Unsubscribe)
		s.hook(s.Monitor.OnHealthReport(s.Publisher.OnHealthReport), s.Monitor.Unsubscribe)
		if s.Realtime != nil {
			s.hook(s.Realtime.OnEnvelope(s.Publisher.OnEnvelope), s.Realtime.RemoveHandler)
			s.hook(s.Realtime.OnConnectionStatus(s.Publisher.OnConnectionStatus), s.Realtime.RemoveHandler)
		}
	}

	if s.GRPC != nil {
		s.hook(s.Monitor.OnHealthChanged(s.GRPC.OnHealthChanged), s.Monitor.Unsubscribe)
		s.hook(s.Monitor.OnHealthReport(s.GRPC.OnHealthReport), s.Monitor.Unsubscribe)
	}
}

func (s *Shield) hook(token string, remove func(string) bool) {
	s.unhooks = append(s.unhooks, func() { remove(token) })
}

func (s *Shield) unwire() {
	for _, unhook := range s.unhooks {
		unhook()
	}
	s.unhooks = nil
}

// controlDeps avoids storing a typed nil realtime client in an interface.
func (s *Shield) controlDeps() grpc_control.ControlDeps {
	deps := grpc_control.ControlDeps{Breakers: s.Breakers, Health: s.Monitor, Orchestrator: s.Orchestrator}
	if s.Realtime != nil {
		deps.Realtime = s.Realtime
	}
	return deps
}

func (s *Shield) statusDeps() rest.StatusDeps {
	deps := rest.StatusDeps{Breakers: s.Breakers, Health: s.Monitor, Orchestrator: s.Orchestrator, Metrics: s.Metrics, Cache: s.Cache}
	if s.Realtime != nil {
		deps.Realtime = s.Realtime
	}
	return deps
}

// -----------------------------------------------------------------------------
// Public Lifecycle Methods
// -----------------------------------------------------------------------------

// Start connects the publisher, runs a first health cycle, starts monitoring,
// opens the push session and finally the outer surfaces. A failure undoes
// whatever was already started.
func (s *Shield) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.Logger.Info("%s : starting", s.Name)

	// 1. Publisher first, fail fast if unavailable
	if s.Publisher != nil {
		if err := s.Publisher.Connect(); err != nil {
			return fmt.Errorf("failed to connect to publisher: %w", err)
		}
	}
	s.wire()

	// 2. Health
	report := s.Monitor.CheckNow(ctx)
	s.Logger.Info("%s : initial health %s", s.Name, report.Overall)
	s.Monitor.StartMonitoring()

	// 3. Realtime; a failed first dial is already on the reconnect schedule
	if s.Realtime != nil {
		if err := s.Realtime.Connect(ctx); err != nil {
			s.Logger.Warning("%s : realtime not connected yet: %v", s.Name, err)
		}
	}

	// 4. Outer surfaces
	if s.GRPC != nil {
		if err := s.GRPC.Start(); err != nil {
			_ = s.shutdown(ctx)
			return fmt.Errorf("failed to start gRPC service: %w", err)
		}
	}
	if s.StatusAPI != nil {
		if err := s.StatusAPI.Start(); err != nil {
			_ = s.shutdown(ctx)
			return fmt.Errorf("failed to start status api: %w", err)
		}
	}

	s.started = true
	s.Logger.Info("%s : started with %d providers", s.Name, len(s.Registry.Names()))
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts everything down in reverse order.
func (s *Shield) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.Logger.Info("%s : stopping", s.Name)

	err := errors.Join(s.shutdown(ctx), s.Metrics.Shutdown(ctx))

	s.started = false
	s.Logger.Info("%s : stopped", s.Name)
	_ = s.Logger.Sync()

	return err
}

// shutdown stops every running part in reverse start order. Parts that never
// started are no-ops.
func (s *Shield) shutdown(ctx context.Context) error {
	var errs []error
	if s.StatusAPI != nil {
		errs = append(errs, s.StatusAPI.Stop(ctx))
	}
	if s.GRPC != nil {
		errs = append(errs, s.GRPC.Stop(ctx))
	}
	if s.Realtime != nil {
		errs = append(errs, s.Realtime.Disconnect())
	}
	s.Monitor.StopMonitoring()
	s.unwire()
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Disconnect())
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------

// Request performs one orchestrated request.
func (s *Shield) Request(ctx context.Context, provider, endpoint string, params map[string]string, useCache bool) models.MResult {
	return s.Orchestrator.Request(ctx, provider, endpoint, params, useCache)
}
