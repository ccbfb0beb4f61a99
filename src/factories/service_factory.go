package factories

import (
	"fmt"

	"resilient-feed/src/breaker"
	"resilient-feed/src/cache"
	"resilient-feed/src/config"
	"resilient-feed/src/health"
	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/metrics"
	"resilient-feed/src/orchestrator"
	"resilient-feed/src/protocols"
	"resilient-feed/src/publishers"
	"resilient-feed/src/realtime"
	"resilient-feed/src/registry"
	"resilient-feed/src/serializers"
	"resilient-feed/src/transports"
)

// -----------------------------------------------------------------------------

// ServiceFactory builds the resilience services from configuration
type ServiceFactory struct {
	Name    string
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// -----------------------------------------------------------------------------

// NewServiceFactory creates a new ServiceFactory instance. m may be nil.
func NewServiceFactory(config *config.Config, log *logger.Logger, m *metrics.Metrics) *ServiceFactory {
	return &ServiceFactory{
		Name:    "ServiceFactory",
		Config:  config,
		Logger:  log,
		Metrics: m,
	}
}

// -----------------------------------------------------------------------------
// Core services
// -----------------------------------------------------------------------------

// CreateRegistry validates the configured providers
func (sf *ServiceFactory) CreateRegistry() (*registry.Registry, error) {
	reg, err := registry.New(sf.Config.Services)
	if err != nil {
		return nil, fmt.Errorf("failed to create service registry: %w", err)
	}
	sf.Logger.Info("%s : registered %d providers: %v", sf.Name, len(reg.Names()), reg.Names())
	return reg, nil
}

// CreateCache creates the in-process response cache
func (sf *ServiceFactory) CreateCache() *cache.MemoryCache {
	return cache.NewMemoryCache(&sf.Config.Cache, sf.Logger)
}

// CreateBreakers creates one breaker per registered provider
func (sf *ServiceFactory) CreateBreakers(reg *registry.Registry) *breaker.Manager {
	manager := breaker.NewManager(reg.Services(), sf.Logger)
	manager.OnStateChange(sf.Metrics.RecordTransition)
	return manager
}

// CreateFetcher creates the HTTP/2 capable fetcher shared by requests, probes and polls
func (sf *ServiceFactory) CreateFetcher() (*transports.HTTPFetcher, error) {
	fetcher, err := transports.NewHTTPFetcher(sf.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create http fetcher: %w", err)
	}
	return fetcher, nil
}

// CreateOrchestrator wires the request path
func (sf *ServiceFactory) CreateOrchestrator(reg *registry.Registry, store interfaces.ICache, breakers *breaker.Manager, fetcher interfaces.IFetcher) *orchestrator.Orchestrator {
	return orchestrator.New(reg, store, breakers, fetcher, sf.Logger, sf.Metrics)
}

// CreateMonitor creates the health monitor over every registered endpoint
func (sf *ServiceFactory) CreateMonitor(reg *registry.Registry, prober interfaces.IProber) *health.Monitor {
	return health.NewMonitor(reg, sf.Config.Health, prober, sf.Logger, sf.Metrics)
}

// -----------------------------------------------------------------------------
// Realtime
// -----------------------------------------------------------------------------

// CreateProtocol looks the configured wire protocol up in the protocol registry
func (sf *ServiceFactory) CreateProtocol() (interfaces.IProtocol, error) {
	constructor, err := protocols.GetConstructor(sf.Config.Realtime.Protocol)
	if err != nil {
		return nil, err
	}

	protocol := constructor(sf.Logger, serializers.NewJSONSerializer())
	sf.Logger.Info("%s : using realtime protocol %s", sf.Name, protocol.GetName())
	return protocol, nil
}

// CreateRealtimeClient builds the push client over a websocket dialer
func (sf *ServiceFactory) CreateRealtimeClient(poller interfaces.IPoller) (*realtime.Client, error) {
	if !sf.Config.Realtime.Enabled {
		return nil, fmt.Errorf("realtime client is disabled in config")
	}

	protocol, err := sf.CreateProtocol()
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime protocol: %w", err)
	}

	dialer := transports.NewWebSocketDialer(sf.Logger, sf.Config.Realtime.ConnectTimeout, nil)
	client := realtime.NewClient(sf.Config.Realtime, dialer, protocol, poller, sf.Logger, sf.Metrics)

	for _, sub := range sf.Config.Realtime.Topics {
		client.Subscribe(sub.Topic, sub.Params)
	}
	return client, nil
}

// -----------------------------------------------------------------------------
// Fan-out
// -----------------------------------------------------------------------------

// CreatePublisher creates the NATS status publisher, or nil when NATS is disabled
func (sf *ServiceFactory) CreatePublisher() interfaces.IPublisher {
	if !sf.Config.NATS.Enabled {
		sf.Logger.Info("%s : NATS disabled, status events are not published", sf.Name)
		return nil
	}
	return publishers.NewNATSPublisher(&sf.Config.NATS, sf.Logger, serializers.NewJSONSerializer())
}
