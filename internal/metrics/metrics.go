package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// database connection metrics
	// ============================================
	DBConnectionPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_db_connection_pool_size",
		Help: "Database connection pool size",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	// ============================================
	// NATS metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_events_published_total",
			Help: "Total number of protocol events published",
		},
		[]string{"event_type"},
	)

	EventPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fasset_event_publish_errors_total",
		Help: "Total number of failed event publications",
	})

	// ============================================
	// protocol operation metrics
	// ============================================
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fasset_operation_duration_seconds",
			Help:    "Protocol operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_operation_errors_total",
			Help: "Total number of rejected protocol operations",
		},
		[]string{"operation", "reason"},
	)

	// ============================================
	// protocol state metrics
	// ============================================
	AgentsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fasset_agents_total",
			Help: "Number of registered agents by status",
		},
		[]string{"status"},
	)

	MintedAMGTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_minted_amg_total",
		Help: "Total minted backing across all agents, in asset minting granules",
	})

	RedemptionQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_redemption_queue_length",
		Help: "Number of open redemption tickets in the FIFO queue",
	})

	OpenReservations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_open_reservations",
		Help: "Number of collateral reservations awaiting payment",
	})

	OpenRedemptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_open_redemptions",
		Help: "Number of redemption requests awaiting agent payment",
	})

	UnderlyingBlockNumber = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_underlying_block_number",
		Help: "Last proven underlying chain block number",
	})

	// ============================================
	// price feed metrics
	// ============================================
	OraclePrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fasset_oracle_price",
			Help: "Latest oracle price in oracle units",
		},
		[]string{"symbol"},
	)

	OracleFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasset_oracle_fetch_errors_total",
			Help: "Total number of failed oracle price fetches",
		},
		[]string{"symbol"},
	)

	// ============================================
	// HTTP metrics
	// ============================================
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fasset_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fasset_websocket_connections",
		Help: "Number of active WebSocket subscribers",
	})
)
