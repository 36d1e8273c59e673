package services

import (
	"context"
	"log"
	"time"

	"fasset-backend/internal/events"
	"fasset-backend/internal/models"
	"fasset-backend/internal/repository"
)

// DeadlineSweeperService watches open reservations and redemption requests
// whose payment window has passed on the underlying chain. It only flags
// them: a default is settled exclusively by the counterparty presenting a
// verified non-payment proof, never by the clock alone.
type DeadlineSweeperService struct {
	protocol     *ProtocolService
	reservations repository.ReservationRepository
	redemptions  repository.RedemptionRepository
	publisher    *events.Publisher

	running       bool
	stopCh        chan struct{}
	checkInterval time.Duration

	// reservations/requests already reported, so one deadline produces one
	// notification
	flaggedReservations map[uint64]bool
	flaggedRedemptions  map[uint64]bool
}

// NewDeadlineSweeperService creates a new DeadlineSweeperService
func NewDeadlineSweeperService(protocol *ProtocolService, reservations repository.ReservationRepository, redemptions repository.RedemptionRepository, publisher *events.Publisher) *DeadlineSweeperService {
	return &DeadlineSweeperService{
		protocol:            protocol,
		reservations:        reservations,
		redemptions:         redemptions,
		publisher:           publisher,
		stopCh:              make(chan struct{}),
		checkInterval:       30 * time.Second,
		flaggedReservations: make(map[uint64]bool),
		flaggedRedemptions:  make(map[uint64]bool),
	}
}

// Start begins the deadline check loop
func (s *DeadlineSweeperService) Start() {
	if s.running {
		return
	}
	s.running = true

	log.Printf("🚀 Starting DeadlineSweeperService (check interval: %v)", s.checkInterval)

	go s.sweepLoop()

	log.Printf("✅ DeadlineSweeperService started")
}

// Stop gracefully stops the deadline check loop
func (s *DeadlineSweeperService) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	log.Printf("🛑 DeadlineSweeperService stopped")
}

func (s *DeadlineSweeperService) sweepLoop() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep reports every open reservation and redemption whose payment window
// has passed on the extrapolated underlying chain cursor.
func (s *DeadlineSweeperService) sweep() {
	ctx := context.Background()
	block, timestamp := s.protocol.CurrentUnderlyingBlock()

	expired, err := s.reservations.FindOpenPastDeadline(ctx, block, timestamp)
	if err != nil {
		log.Printf("❌ [DeadlineSweeper] Failed to query expired reservations: %v", err)
	} else {
		for _, r := range expired {
			if s.flaggedReservations[r.ID] {
				continue
			}
			s.flaggedReservations[r.ID] = true
			log.Printf("⏰ [DeadlineSweeper] Reservation %d past payment deadline (vault=%s, last block=%d)",
				r.ID, r.Vault, r.LastUnderlyingBlock)
			if s.publisher != nil {
				s.publisher.Publish(ctx, models.EventMintingDeadlinePassed, r.Vault, map[string]interface{}{
					"reservation_id": r.ID,
					"vault":          r.Vault,
					"minter":         r.Minter,
				})
			}
		}
	}

	expiredRed, err := s.redemptions.FindOpenPastDeadline(ctx, block, timestamp)
	if err != nil {
		log.Printf("❌ [DeadlineSweeper] Failed to query expired redemptions: %v", err)
		return
	}
	for _, r := range expiredRed {
		if s.flaggedRedemptions[r.ID] {
			continue
		}
		s.flaggedRedemptions[r.ID] = true
		log.Printf("⏰ [DeadlineSweeper] Redemption %d past payment deadline (vault=%s, redeemer=%s)",
			r.ID, r.Vault, r.Redeemer)
		if s.publisher != nil {
			s.publisher.Publish(ctx, models.EventRedemptionDeadlinePassed, r.Vault, map[string]interface{}{
				"request_id": r.ID,
				"vault":      r.Vault,
				"redeemer":   r.Redeemer,
			})
		}
	}
}
