package publishers

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/models"

	"github.com/nats-io/nats.go"
)

// Subjects, relative to the configured prefix.
const (
	SubjectEnvelope     = "realtime.envelope"
	SubjectConnection   = "realtime.status"
	SubjectHealth       = "health.changed"
	SubjectHealthReport = "health.report"
	SubjectBreaker      = "breaker.transition"
)

// -----------------------------------------------------------------------------
// NATSPublisher implements interfaces.IPublisher
// -----------------------------------------------------------------------------

// NATSPublisher pushes resilience events to NATS, over JetStream when configured.
type NATSPublisher struct {
	name   string
	config *models.MNATSConfig
	logger *logger.Logger

	mu sync.Mutex

	nc         *nats.Conn             // NATS core connection
	js         nats.JetStreamContext  // JetStream context (if enabled)
	serializer interfaces.ISerializer // serialize message before sending

	// sink is the publish path chosen at Connect
	sink func(subject string, data []byte) error

	connected atomic.Bool
}

// -----------------------------------------------------------------------------

// NewNATSPublisher creates a disconnected publisher.
func NewNATSPublisher(config *models.MNATSConfig, log *logger.Logger, serializer interfaces.ISerializer) *NATSPublisher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &NATSPublisher{
		name:       "nats:" + config.ClientID,
		config:     config,
		logger:     log,
		serializer: serializer,
	}
}

// -----------------------------------------------------------------------------
// Event callbacks
// -----------------------------------------------------------------------------

// OnEnvelope publishes under realtime.envelope.<topic>.
func (np *NATSPublisher) OnEnvelope(envelope models.MRealtimeEnvelope) {
	np.publishObject(SubjectEnvelope+"."+subjectToken(envelope.Topic), envelope)
}

// OnHealthChanged publishes under health.changed.<endpoint>.
func (np *NATSPublisher) OnHealthChanged(record models.MHealthRecord) {
	np.publishObject(SubjectHealth+"."+subjectToken(record.Name), record)
}

// OnHealthReport publishes under health.report.
func (np *NATSPublisher) OnHealthReport(report models.MHealthReport) {
	np.publishObject(SubjectHealthReport, report)
}

// OnBreakerTransition publishes under breaker.transition.<provider>.
func (np *NATSPublisher) OnBreakerTransition(transition models.MBreakerTransition) {
	np.logger.Info("%s : breaker %s %s -> %s", np.name, transition.Provider, transition.From, transition.To)
	np.publishObject(SubjectBreaker+"."+subjectToken(transition.Provider), transition)
}

// OnConnectionStatus publishes under realtime.status.
func (np *NATSPublisher) OnConnectionStatus(status models.MConnectionStatus) {
	np.publishObject(SubjectConnection, status)
}

// -----------------------------------------------------------------------------

// publishObject serializes obj and publishes it. Failures are logged only:
// event fan-out never blocks or fails the caller.
func (np *NATSPublisher) publishObject(subject string, obj any) {
	data, err := np.serializer.Marshal(obj)
	if err != nil {
		np.logger.Error("%s : failed to serialize event for %s: %v", np.name, subject, err)
		return
	}

	if err := np.Publish(subject, data); err != nil {
		np.logger.Warning("%s : failed to publish to %s: %v", np.name, np.getSubject(subject), err)
	}
}

// -----------------------------------------------------------------------------

// Publish sends raw data to subject (prefixed) over the configured path.
func (np *NATSPublisher) Publish(subject string, data []byte) error {
	if !np.IsConnected() {
		return fmt.Errorf("nats client not connected")
	}

	np.mu.Lock()
	sink := np.sink
	np.mu.Unlock()
	if sink == nil {
		return fmt.Errorf("nats publish path not initialized")
	}

	return sink(np.getSubject(subject), data)
}

// -----------------------------------------------------------------------------

func (np *NATSPublisher) publishCore(subject string, data []byte) error {
	// fire-and-forget
	return np.nc.Publish(subject, data)
}

func (np *NATSPublisher) publishJetStream(subject string, data []byte) error {
	if np.js == nil {
		return fmt.Errorf("jetstream is not initialized or enabled")
	}
	if _, err := np.js.Publish(subject, data); err != nil {
		return fmt.Errorf("jetstream publish failed: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// Connect establishes connection to NATS and sets up JetStream if configured.
func (np *NATSPublisher) Connect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc != nil && np.nc.IsConnected() {
		return nil
	}
	if len(np.config.Servers) == 0 {
		return fmt.Errorf("no nats servers configured")
	}

	opts := []nats.Option{
		nats.Name(np.config.ClientID),
		nats.Timeout(np.config.ConnectTimeout),
		nats.ReconnectWait(np.config.ReconnectWait),
		nats.MaxReconnects(np.config.MaxReconnects),
		nats.FlusherTimeout(np.config.FlushTimeout),

		nats.RetryOnFailedConnect(true),
		nats.ClosedHandler(func(nc *nats.Conn) {
			np.logger.Warning("%s : NATS connection closed", np.name)
			np.connected.Store(false)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			np.logger.Warning("%s : NATS disconnected, attempting reconnect: %v", np.name, err)
			np.connected.Store(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			np.logger.Info("%s : NATS reconnected to %s", np.name, nc.ConnectedUrl())
			np.connected.Store(true)
		}),
	}

	nc, err := nats.Connect(strings.Join(np.config.Servers, ","), opts...)
	if err != nil {
		return fmt.Errorf("nats connection failed: %w", err)
	}
	np.nc = nc
	np.connected.Store(nc.IsConnected())
	np.sink = np.publishCore

	np.logger.Info("%s : connected to NATS at %s", np.name, nc.ConnectedUrl())

	if np.config.JetStream == nil || !np.config.JetStream.Enabled {
		np.logger.Info("%s : publishing over NATS Core (fire-and-forget)", np.name)
		return nil
	}

	np.js, err = nc.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream context creation failed: %w", err)
	}
	np.sink = np.publishJetStream
	np.logger.Info("%s : publishing over JetStream", np.name)

	if err := np.ensureStreamExists(); err != nil {
		np.logger.Warning("%s : failed to ensure stream exists: %v (continuing anyway)", np.name, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// ensureStreamExists creates the JetStream stream when it is missing.
func (np *NATSPublisher) ensureStreamExists() error {
	streamConfig, err := np.streamConfig()
	if err != nil {
		return err
	}

	if stream, err := np.js.StreamInfo(streamConfig.Name); err == nil {
		np.logger.Info("%s : JetStream stream '%s' already exists with %d subjects",
			np.name, streamConfig.Name, len(stream.Config.Subjects))
		return nil
	}

	if _, err := np.js.AddStream(streamConfig); err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", streamConfig.Name, err)
	}

	np.logger.Info("%s : created JetStream stream '%s' with subjects: %v",
		np.name, streamConfig.Name, streamConfig.Subjects)
	return nil
}

// -----------------------------------------------------------------------------

// streamConfig builds the stream definition. Without explicit subjects the
// stream captures everything under the prefix.
func (np *NATSPublisher) streamConfig() (*nats.StreamConfig, error) {
	js := np.config.JetStream
	if js == nil || js.StreamName == "" {
		return nil, fmt.Errorf("stream name not configured")
	}

	subjects := js.Subjects
	if len(subjects) == 0 {
		subjects = []string{np.getSubject(">")}
	}

	maxAge := js.MaxAge
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}

	replicas := js.Replicas
	if replicas == 0 {
		replicas = 1
	}

	return &nats.StreamConfig{
		Name:       js.StreamName,
		Subjects:   subjects,
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		Replicas:   replicas,
		MaxAge:     maxAge,
		MaxMsgs:    js.MaxMsgs,
		MaxBytes:   js.MaxBytes,
		MaxMsgSize: js.MaxMsgSize,
		Discard:    nats.DiscardOld,
	}, nil
}

// -----------------------------------------------------------------------------

// Disconnect drains pending messages and closes the connection.
func (np *NATSPublisher) Disconnect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	np.connected.Store(false)
	np.sink = nil

	if np.nc == nil || np.nc.IsClosed() {
		return nil
	}

	if err := np.nc.FlushTimeout(np.config.FlushTimeout); err != nil {
		np.logger.Warning("%s : flush before close failed: %v", np.name, err)
	}
	np.nc.Close()
	np.logger.Info("%s : NATS connection closed", np.name)
	return nil
}

// -----------------------------------------------------------------------------

// IsConnected returns connection status
func (np *NATSPublisher) IsConnected() bool {
	return np.connected.Load()
}

// GetName returns client identifier
func (np *NATSPublisher) GetName() string {
	return np.name
}

// -----------------------------------------------------------------------------

// getSubject prepends the configured subject prefix if it exists.
func (np *NATSPublisher) getSubject(subject string) string {
	if np.config.SubjectPrefix != "" {
		return fmt.Sprintf("%s.%s", np.config.SubjectPrefix, subject)
	}
	return subject
}

// subjectToken makes a name safe to use as one subject token.
func subjectToken(name string) string {
	if name == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(name)
}

var _ interfaces.IPublisher = (*NATSPublisher)(nil)
