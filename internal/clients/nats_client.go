package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"fasset-backend/internal/config"
	"fasset-backend/internal/metrics"

	"github.com/nats-io/nats.go"
)

// NATSClient NATS connection wrapper. The protocol service is the single
// writer; consumers (agent bots, liquidation bots, dashboards) subscribe to
// the published subjects.
type NATSClient struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSClient creates a connected NATS client
func NewNATSClient(url, subjectPrefix string) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	reconnectWait := 5 * time.Second
	maxReconnects := -1

	if config.AppConfig != nil {
		if config.AppConfig.NATS.Timeout > 0 {
			connectTimeout = time.Duration(config.AppConfig.NATS.Timeout) * time.Second
		}
		if config.AppConfig.NATS.ReconnectWait > 0 {
			reconnectWait = time.Duration(config.AppConfig.NATS.ReconnectWait) * time.Second
		}
		if config.AppConfig.NATS.MaxReconnects != 0 {
			maxReconnects = config.AppConfig.NATS.MaxReconnects
		}
	}
	log.Printf("🔌 Connecting to NATS: url=%s timeout=%v", url, connectTimeout)

	conn, err := nats.Connect(url,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)

	return &NATSClient{
		conn:          conn,
		subjectPrefix: subjectPrefix,
	}, nil
}

// Publish sends one JSON message on a subject below the configured prefix.
func (c *NATSClient) Publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	full := c.subjectPrefix + "." + subject
	if err := c.conn.Publish(full, data); err != nil {
		metrics.EventPublishErrors.Inc()
		return fmt.Errorf("failed to publish on %s: %w", full, err)
	}

	metrics.EventsPublished.WithLabelValues(subject).Inc()
	return nil
}

// Subscribe registers a raw subscription below the configured prefix.
func (c *NATSClient) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	full := c.subjectPrefix + "." + subject
	sub, err := c.conn.Subscribe(full, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", full, err)
	}
	return sub, nil
}

// Close drains and closes the connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		log.Printf("NATS connection closed")
	}
}

// GetConnection returns the underlying connection.
func (c *NATSClient) GetConnection() *nats.Conn {
	return c.conn
}
