package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
)

const (
	defaultSubject        = "emergency.events"
	defaultReconnectWait  = 2 * time.Second
	defaultMaxReconnects  = -1
	defaultConnectTimeout = 5 * time.Second
)

// Config holds NATS connection settings
type Config struct {
	URL     string
	Name    string
	Subject string // events go to <Subject>.<event type>
}

// Publisher broadcasts coordinator events on NATS for downstream consumers
// such as CAD bridges and audit pipelines.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

var _ repositories.EventPublisher = (*Publisher)(nil)

// NewPublisher connects to NATS
func NewPublisher(config Config, logger *zap.Logger) (*Publisher, error) {
	subject := config.Subject
	if subject == "" {
		subject = defaultSubject
	}

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(defaultReconnectWait),
		nats.MaxReconnects(defaultMaxReconnects),
		nats.Timeout(defaultConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to NATS: %w", domain.ErrTransport, err)
	}

	logger.Info("Connected to NATS",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("subject", subject))

	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

// Subject returns the subject an event is published on
func (p *Publisher) Subject(eventType entities.EventType) string {
	return p.subject + "." + string(eventType)
}

// Publish implements repositories.EventPublisher. Failures are logged; the
// coordinator never waits on the broker.
func (p *Publisher) Publish(event entities.EmergencyEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	if err := p.conn.Publish(p.Subject(event.Type), payload); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

// Close flushes pending events and closes the connection
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
