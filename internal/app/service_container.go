package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"fasset-backend/internal/clients"
	"fasset-backend/internal/config"
	"fasset-backend/internal/core"
	"fasset-backend/internal/db"
	"fasset-backend/internal/events"
	"fasset-backend/internal/handlers"
	"fasset-backend/internal/repository"
	"fasset-backend/internal/services"

	"gorm.io/gorm"
)

// ServiceContainer wires repositories, clients and services together
type ServiceContainer struct {
	// Database
	DB *gorm.DB

	// Repositories
	AgentRepo         repository.AgentRepository
	TicketRepo        repository.TicketRepository
	ReservationRepo   repository.ReservationRepository
	RedemptionRepo    repository.RedemptionRepository
	PaymentRecordRepo repository.PaymentRecordRepository
	EventRepo         repository.EventRepository

	// Clients
	AttestationClient *clients.AttestationClient
	VaultClient       *clients.VaultClient
	NATSClient        *clients.NATSClient
	OracleClient      *clients.PriceOracleClient

	// Core Services
	Publisher            *events.Publisher
	ProtocolService      *services.ProtocolService
	DeadlineSweeper      *services.DeadlineSweeperService
	PriceUpdateService   *services.PriceUpdateService
	WebSocketPushService *services.WebSocketPushService
	MonitoringService    *services.MonitoringService

	// Handlers
	AuthHandler        *handlers.AuthHandler
	AdminAuthHandler   *handlers.AdminAuthHandler
	AgentHandler       *handlers.AgentHandler
	MintingHandler     *handlers.MintingHandler
	RedemptionHandler  *handlers.RedemptionHandler
	ChallengeHandler   *handlers.ChallengeHandler
	LiquidationHandler *handlers.LiquidationHandler
	SystemHandler      *handlers.SystemHandler
	AdminHandler       *handlers.AdminHandler
	PriceHandler       *handlers.PriceHandler
	EventHandler       *handlers.EventHandler
	WebSocketHandler   *handlers.WebSocketHandler

	natsOnce sync.Once
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once and recovers protocol
// state from the database
func InitializeContainer(ctx context.Context) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")

		container := &ServiceContainer{
			DB: db.DB,
		}

		if err := container.initRepositories(); err != nil {
			initErr = fmt.Errorf("failed to initialize repositories: %w", err)
			return
		}

		if err := container.initClients(); err != nil {
			initErr = fmt.Errorf("failed to initialize clients: %w", err)
			return
		}

		if err := container.initCoreServices(ctx); err != nil {
			initErr = fmt.Errorf("failed to initialize core services: %w", err)
			return
		}

		container.initHandlers()

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

func (c *ServiceContainer) initRepositories() error {
	log.Println("📦 Initializing Repositories...")

	c.AgentRepo = repository.NewAgentRepository(c.DB)
	c.TicketRepo = repository.NewTicketRepository(c.DB)
	c.ReservationRepo = repository.NewReservationRepository(c.DB)
	c.RedemptionRepo = repository.NewRedemptionRepository(c.DB)
	c.PaymentRecordRepo = repository.NewPaymentRecordRepository(c.DB)
	c.EventRepo = repository.NewEventRepository(c.DB)

	log.Println("✅ Repositories initialized")
	return nil
}

func (c *ServiceContainer) initClients() error {
	log.Println("🔌 Initializing Clients...")

	c.AttestationClient = clients.NewAttestationClient(config.GetAttestationURL())
	c.OracleClient = clients.NewPriceOracleClient(config.GetOracleURL())

	if config.AppConfig.Vault.Enabled {
		vaultClient, err := clients.NewVaultClient(&config.AppConfig.Vault)
		if err != nil {
			return fmt.Errorf("failed to create vault client: %w", err)
		}
		c.VaultClient = vaultClient
		log.Printf("✅ Vault client connected: %s", config.AppConfig.Vault.RPCEndpoint)
	} else {
		log.Println("⚠️ Vault client disabled, collateral payouts will be recorded only")
	}

	// NATS is optional, events degrade to persistence-only mode
	if err := c.initNATSClient(); err != nil {
		log.Printf("⚠️ NATS initialization skipped: %v", err)
	}

	log.Println("✅ Clients initialized")
	return nil
}

func (c *ServiceContainer) initNATSClient() error {
	if config.AppConfig == nil || config.AppConfig.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}

	var initErr error
	c.natsOnce.Do(func() {
		log.Println("🔌 Connecting to NATS...")

		natsClient, err := clients.NewNATSClient(config.AppConfig.NATS.URL, config.AppConfig.NATS.SubjectPrefix)
		if err != nil {
			initErr = fmt.Errorf("failed to create NATS client: %w", err)
			return
		}

		c.NATSClient = natsClient
		log.Printf("✅ NATS client connected: %s", config.AppConfig.NATS.URL)
	})

	return initErr
}

func (c *ServiceContainer) initCoreServices(ctx context.Context) error {
	log.Println("🔧 Initializing Core Services...")

	settings, err := config.AppConfig.Protocol.Settings()
	if err != nil {
		return fmt.Errorf("invalid protocol settings: %w", err)
	}

	c.Publisher = events.InitPublisher(c.NATSClient, c.EventRepo)

	c.ProtocolService = services.NewProtocolService(
		core.NewStore(settings),
		c.AgentRepo,
		c.TicketRepo,
		c.ReservationRepo,
		c.RedemptionRepo,
		c.PaymentRecordRepo,
		c.EventRepo,
		c.AttestationClient,
		c.VaultClient,
		c.Publisher,
	)

	// Replay persisted state into the in-memory store before serving
	if err := c.ProtocolService.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover protocol state: %w", err)
	}

	c.WebSocketPushService = services.NewWebSocketPushService()
	c.WebSocketPushService.StartEventBridge(c.NATSClient)

	c.PriceUpdateService = services.NewPriceUpdateService(c.OracleClient, c.ProtocolService, c.EventRepo)
	c.PriceUpdateService.RegisterListener(c.WebSocketPushService)
	c.PriceUpdateService.Start()

	c.DeadlineSweeper = services.NewDeadlineSweeperService(
		c.ProtocolService,
		c.ReservationRepo,
		c.RedemptionRepo,
		c.Publisher,
	)
	c.DeadlineSweeper.Start()

	c.MonitoringService = services.NewMonitoringService(c.DB, c.ProtocolService, c.NATSClient)
	c.MonitoringService.Start()

	log.Println("✅ Core Services initialized")
	return nil
}

func (c *ServiceContainer) initHandlers() {
	c.AuthHandler = handlers.NewAuthHandler()
	c.AdminAuthHandler = handlers.NewAdminAuthHandler()
	c.AgentHandler = handlers.NewAgentHandler(c.ProtocolService, c.AgentRepo, c.TicketRepo)
	c.MintingHandler = handlers.NewMintingHandler(c.ProtocolService, c.ReservationRepo)
	c.RedemptionHandler = handlers.NewRedemptionHandler(c.ProtocolService, c.RedemptionRepo)
	c.ChallengeHandler = handlers.NewChallengeHandler(c.ProtocolService, c.EventRepo)
	c.LiquidationHandler = handlers.NewLiquidationHandler(c.ProtocolService, c.EventRepo)
	c.SystemHandler = handlers.NewSystemHandler(c.ProtocolService)
	c.AdminHandler = handlers.NewAdminHandler(c.ProtocolService)
	c.PriceHandler = handlers.NewPriceHandler(c.EventRepo)
	c.EventHandler = handlers.NewEventHandler(c.EventRepo)
	c.WebSocketHandler = handlers.NewWebSocketHandler(c.WebSocketPushService)
}

// Cleanup stops background services and closes connections
func (c *ServiceContainer) Cleanup() {
	log.Println("🧹 Cleaning up Service Container...")

	if c.MonitoringService != nil {
		c.MonitoringService.Stop()
	}

	if c.DeadlineSweeper != nil {
		c.DeadlineSweeper.Stop()
	}

	if c.PriceUpdateService != nil {
		c.PriceUpdateService.Stop()
	}

	if c.NATSClient != nil {
		c.NATSClient.Close()
	}

	log.Println("✅ Service Container cleaned up")
}
