package services

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"fasset-backend/internal/clients"
	"fasset-backend/internal/config"
	"fasset-backend/internal/core"
	"fasset-backend/internal/metrics"
	"fasset-backend/internal/models"
	"fasset-backend/internal/repository"
)

// PriceUpdateService periodically pulls the asset and collateral token
// prices from the oracle, feeds them into the protocol conversion layer and
// keeps a snapshot history. Collateral ratios, liquidations and reservation
// sizing all read the prices installed here.
type PriceUpdateService struct {
	oracle   *clients.PriceOracleClient
	protocol *ProtocolService
	events   repository.EventRepository

	assetSymbol      string
	vaultTokenSymbol string
	poolTokenSymbol  string

	ticker    *time.Ticker
	done      chan bool
	mu        sync.RWMutex
	listeners []PriceChangeListener
	isRunning bool
	interval  time.Duration
}

// PriceChangeListener interface for receiving price updates
type PriceChangeListener interface {
	OnPriceChange(symbol string, value string, decimals uint8)
}

// NewPriceUpdateService creates a new price update service
func NewPriceUpdateService(oracle *clients.PriceOracleClient, protocol *ProtocolService, events repository.EventRepository) *PriceUpdateService {
	interval := 60 * time.Second
	assetSymbol, vaultSymbol, poolSymbol := "FXRP", "USDC", "CFLR"
	if config.AppConfig != nil {
		if config.AppConfig.Oracle.RefreshSeconds > 0 {
			interval = time.Duration(config.AppConfig.Oracle.RefreshSeconds) * time.Second
		}
		if config.AppConfig.Oracle.AssetSymbol != "" {
			assetSymbol = config.AppConfig.Oracle.AssetSymbol
		}
		if config.AppConfig.Oracle.VaultTokenSymbol != "" {
			vaultSymbol = config.AppConfig.Oracle.VaultTokenSymbol
		}
		if config.AppConfig.Oracle.PoolTokenSymbol != "" {
			poolSymbol = config.AppConfig.Oracle.PoolTokenSymbol
		}
	}
	return &PriceUpdateService{
		oracle:           oracle,
		protocol:         protocol,
		events:           events,
		assetSymbol:      assetSymbol,
		vaultTokenSymbol: vaultSymbol,
		poolTokenSymbol:  poolSymbol,
		done:             make(chan bool),
		listeners:        make([]PriceChangeListener, 0),
		interval:         interval,
	}
}

// Start begins the price update loop
func (s *PriceUpdateService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.ticker = time.NewTicker(s.interval)

	go func() {
		// Install prices immediately on start; protocol operations reject
		// conversions until a price is present.
		s.updatePrices()

		for {
			select {
			case <-s.done:
				s.ticker.Stop()
				return
			case <-s.ticker.C:
				s.updatePrices()
			}
		}
	}()

	log.Printf("✅ Price Update Service started (%v interval, asset=%s)", s.interval, s.assetSymbol)
}

// Stop stops the price update loop
func (s *PriceUpdateService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	select {
	case s.done <- true:
	default:
	}
	log.Println("🛑 Price Update Service stopped")
}

// updatePrices fetches all three prices and installs them atomically; a
// partial fetch keeps the previous price set, stale prices beat torn ones.
func (s *PriceUpdateService) updatePrices() {
	asset, ok := s.fetch(s.assetSymbol)
	if !ok {
		return
	}
	vaultToken, ok := s.fetch(s.vaultTokenSymbol)
	if !ok {
		return
	}
	poolToken, ok := s.fetch(s.poolTokenSymbol)
	if !ok {
		return
	}

	s.protocol.SetPrices(asset, map[core.CollateralKind]core.Price{
		core.CollateralVault: vaultToken,
		core.CollateralPool:  poolToken,
	})

	s.snapshot(s.assetSymbol, asset)
	s.snapshot(s.vaultTokenSymbol, vaultToken)
	s.snapshot(s.poolTokenSymbol, poolToken)
}

// fetch loads one symbol from the oracle and converts it for the ledger.
func (s *PriceUpdateService) fetch(symbol string) (core.Price, bool) {
	resp, err := s.oracle.GetPrice(symbol)
	if err != nil {
		log.Printf("❌ [PriceUpdate] Failed to fetch %s price: %v", symbol, err)
		metrics.OracleFetchErrors.WithLabelValues(symbol).Inc()
		return core.Price{}, false
	}
	value, ok := new(big.Int).SetString(resp.Value, 10)
	if !ok || value.Sign() <= 0 {
		log.Printf("❌ [PriceUpdate] Oracle returned invalid %s price: %q", symbol, resp.Value)
		metrics.OracleFetchErrors.WithLabelValues(symbol).Inc()
		return core.Price{}, false
	}
	price := core.Price{
		Value:     value,
		Decimals:  resp.Decimals,
		Timestamp: uint64(resp.Timestamp),
	}
	scaled, _ := new(big.Float).SetInt(value).Float64()
	for i := uint8(0); i < resp.Decimals; i++ {
		scaled /= 10
	}
	metrics.OraclePrice.WithLabelValues(symbol).Set(scaled)
	return price, true
}

// snapshot persists a price history row and notifies listeners.
func (s *PriceUpdateService) snapshot(symbol string, price core.Price) {
	row := &models.PriceSnapshot{
		Symbol:   symbol,
		Value:    price.Value.String(),
		Decimals: price.Decimals,
	}
	if err := s.events.CreatePriceSnapshot(context.Background(), row); err != nil {
		log.Printf("⚠️ [PriceUpdate] Failed to persist %s snapshot: %v", symbol, err)
	}
	s.notifyPriceChange(symbol, price.Value.String(), price.Decimals)
}

// notifyPriceChange notifies all registered listeners about price changes
func (s *PriceUpdateService) notifyPriceChange(symbol, value string, decimals uint8) {
	s.mu.RLock()
	listeners := make([]PriceChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, listener := range listeners {
		// Non-blocking send
		go func(l PriceChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("⚠️ Price listener panic: %v", r)
				}
			}()
			l.OnPriceChange(symbol, value, decimals)
		}(listener)
	}
}

// RegisterListener registers a listener for price changes
func (s *PriceUpdateService) RegisterListener(listener PriceChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// UnregisterListener removes a listener
func (s *PriceUpdateService) UnregisterListener(listener PriceChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.listeners {
		if l == listener {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
}
