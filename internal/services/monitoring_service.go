package services

import (
	"log"
	"sync"
	"time"

	"fasset-backend/internal/clients"
	"fasset-backend/internal/metrics"

	"gorm.io/gorm"
)

// MonitoringService keeps the Prometheus gauges current. Protocol state
// gauges come straight from the in-memory ledger, database and NATS health
// from their connections.
type MonitoringService struct {
	db       *gorm.DB
	protocol *ProtocolService
	nats     *clients.NATSClient
	stopCh   chan struct{}
	wg       sync.WaitGroup

	stateInterval time.Duration
}

// NewMonitoringService creates the monitoring service.
func NewMonitoringService(db *gorm.DB, protocol *ProtocolService, nats *clients.NATSClient) *MonitoringService {
	return &MonitoringService{
		db:            db,
		protocol:      protocol,
		nats:          nats,
		stopCh:        make(chan struct{}),
		stateInterval: 30 * time.Second,
	}
}

// Start launches the monitoring loops.
func (m *MonitoringService) Start() {
	log.Println("🚀 Starting monitoring service...")

	m.wg.Add(1)
	go m.monitorDatabaseConnection()

	m.wg.Add(1)
	go m.monitorProtocolState()

	log.Println("✅ Monitoring service started")
}

// Stop stops the monitoring loops.
func (m *MonitoringService) Stop() {
	log.Println("🛑 Stopping monitoring service...")
	close(m.stopCh)
	m.wg.Wait()
	log.Println("✅ Monitoring service stopped")
}

func (m *MonitoringService) monitorDatabaseConnection() {
	defer m.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.updateDatabaseMetrics()
		}
	}
}

func (m *MonitoringService) updateDatabaseMetrics() {
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}

	stats := sqlDB.Stats()
	metrics.DBConnectionPoolSize.Set(float64(stats.MaxOpenConnections))
	metrics.DBConnectionActive.Set(float64(stats.OpenConnections - stats.Idle))

	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
	}
}

func (m *MonitoringService) monitorProtocolState() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.stateInterval)
	defer ticker.Stop()

	m.updateProtocolMetrics()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.updateProtocolMetrics()
		}
	}
}

func (m *MonitoringService) updateProtocolMetrics() {
	m.protocol.RefreshGauges()

	if m.nats != nil {
		if conn := m.nats.GetConnection(); conn != nil && conn.IsConnected() {
			metrics.NATSConnectionStatus.Set(1)
		} else {
			metrics.NATSConnectionStatus.Set(0)
		}
	} else {
		metrics.NATSConnectionStatus.Set(0)
	}
}
