package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"fasset-backend/internal/clients"
	"fasset-backend/internal/core"
	"fasset-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const testEpoch = int64(1_700_000_000)

// In-memory repositories backing service tests. They mirror the gorm
// repositories closely enough for the write-through and recovery paths.

type fakeAgentRepo struct {
	agents      map[string]*models.Agent
	withdrawals map[string]*models.CollateralWithdrawal
}

func newFakeAgentRepo() *fakeAgentRepo {
	return &fakeAgentRepo{
		agents:      make(map[string]*models.Agent),
		withdrawals: make(map[string]*models.CollateralWithdrawal),
	}
}

func (r *fakeAgentRepo) Create(ctx context.Context, agent *models.Agent) error {
	cp := *agent
	r.agents[agent.Vault] = &cp
	return nil
}

func (r *fakeAgentRepo) GetByVault(ctx context.Context, vault string) (*models.Agent, error) {
	a, ok := r.agents[vault]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAgentRepo) GetByUnderlyingAddress(ctx context.Context, address string) (*models.Agent, error) {
	for _, a := range r.agents {
		if a.UnderlyingAddress == address {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAgentRepo) Save(ctx context.Context, agent *models.Agent) error {
	cp := *agent
	r.agents[agent.Vault] = &cp
	return nil
}

func (r *fakeAgentRepo) list() []*models.Agent {
	out := make([]*models.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeAgentRepo) FindAll(ctx context.Context, page, limit int) ([]*models.Agent, int64, error) {
	rows := r.list()
	return rows, int64(len(rows)), nil
}

func (r *fakeAgentRepo) FindByStatus(ctx context.Context, status models.AgentStatus, page, limit int) ([]*models.Agent, int64, error) {
	var out []*models.Agent
	for _, a := range r.list() {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeAgentRepo) FindPubliclyAvailable(ctx context.Context, page, limit int) ([]*models.Agent, int64, error) {
	var out []*models.Agent
	for _, a := range r.list() {
		if a.PubliclyAvailable {
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeAgentRepo) ListOpen(ctx context.Context) ([]*models.Agent, error) {
	var out []*models.Agent
	for _, a := range r.list() {
		if a.Status != models.AgentStatusDestroyed {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAgentRepo) UpsertWithdrawal(ctx context.Context, w *models.CollateralWithdrawal) error {
	cp := *w
	r.withdrawals[w.Vault+"/"+w.CollateralKind] = &cp
	return nil
}

func (r *fakeAgentRepo) DeleteWithdrawal(ctx context.Context, vault, kind string) error {
	delete(r.withdrawals, vault+"/"+kind)
	return nil
}

func (r *fakeAgentRepo) FindWithdrawalsByVault(ctx context.Context, vault string) ([]*models.CollateralWithdrawal, error) {
	var out []*models.CollateralWithdrawal
	for _, w := range r.withdrawals {
		if w.Vault == vault {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeAgentRepo) ListWithdrawals(ctx context.Context) ([]*models.CollateralWithdrawal, error) {
	var out []*models.CollateralWithdrawal
	for _, w := range r.withdrawals {
		out = append(out, w)
	}
	return out, nil
}

type fakeTicketRepo struct {
	tickets map[uint64]*models.RedemptionTicket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[uint64]*models.RedemptionTicket)}
}

func (r *fakeTicketRepo) Create(ctx context.Context, t *models.RedemptionTicket) error {
	cp := *t
	r.tickets[t.ID] = &cp
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id uint64) (*models.RedemptionTicket, error) {
	t, ok := r.tickets[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTicketRepo) Save(ctx context.Context, t *models.RedemptionTicket) error {
	cp := *t
	r.tickets[t.ID] = &cp
	return nil
}

func (r *fakeTicketRepo) Delete(ctx context.Context, id uint64) error {
	delete(r.tickets, id)
	return nil
}

func (r *fakeTicketRepo) ListOrdered(ctx context.Context) ([]*models.RedemptionTicket, error) {
	out := make([]*models.RedemptionTicket, 0, len(r.tickets))
	for _, t := range r.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTicketRepo) ListByVault(ctx context.Context, vault string) ([]*models.RedemptionTicket, error) {
	all, _ := r.ListOrdered(ctx)
	var out []*models.RedemptionTicket
	for _, t := range all {
		if t.Vault == vault {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) FindByVault(ctx context.Context, vault string, page, limit int) ([]*models.RedemptionTicket, int64, error) {
	out, _ := r.ListByVault(ctx, vault)
	return out, int64(len(out)), nil
}

type fakeReservationRepo struct {
	rows map[uint64]*models.CollateralReservation
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{rows: make(map[uint64]*models.CollateralReservation)}
}

func (r *fakeReservationRepo) Create(ctx context.Context, row *models.CollateralReservation) error {
	cp := *row
	r.rows[row.ID] = &cp
	return nil
}

func (r *fakeReservationRepo) GetByID(ctx context.Context, id uint64) (*models.CollateralReservation, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *fakeReservationRepo) Save(ctx context.Context, row *models.CollateralReservation) error {
	cp := *row
	r.rows[row.ID] = &cp
	return nil
}

func (r *fakeReservationRepo) list() []*models.CollateralReservation {
	out := make([]*models.CollateralReservation, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeReservationRepo) ListOpen(ctx context.Context) ([]*models.CollateralReservation, error) {
	var out []*models.CollateralReservation
	for _, row := range r.list() {
		if row.Status == models.ReservationStatusReserved {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeReservationRepo) FindByMinter(ctx context.Context, minter string, page, limit int) ([]*models.CollateralReservation, int64, error) {
	var out []*models.CollateralReservation
	for _, row := range r.list() {
		if row.Minter == minter {
			out = append(out, row)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeReservationRepo) FindByVault(ctx context.Context, vault string, page, limit int) ([]*models.CollateralReservation, int64, error) {
	var out []*models.CollateralReservation
	for _, row := range r.list() {
		if row.Vault == vault {
			out = append(out, row)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeReservationRepo) FindOpenPastDeadline(ctx context.Context, block uint64, timestamp uint64) ([]*models.CollateralReservation, error) {
	var out []*models.CollateralReservation
	for _, row := range r.list() {
		if row.Status == models.ReservationStatusReserved &&
			row.LastUnderlyingBlock < block && row.LastUnderlyingTimestamp < timestamp {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeRedemptionRepo struct {
	rows map[uint64]*models.RedemptionRequest
}

func newFakeRedemptionRepo() *fakeRedemptionRepo {
	return &fakeRedemptionRepo{rows: make(map[uint64]*models.RedemptionRequest)}
}

func (r *fakeRedemptionRepo) Create(ctx context.Context, row *models.RedemptionRequest) error {
	cp := *row
	r.rows[row.ID] = &cp
	return nil
}

func (r *fakeRedemptionRepo) GetByID(ctx context.Context, id uint64) (*models.RedemptionRequest, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *fakeRedemptionRepo) Save(ctx context.Context, row *models.RedemptionRequest) error {
	cp := *row
	r.rows[row.ID] = &cp
	return nil
}

func (r *fakeRedemptionRepo) list() []*models.RedemptionRequest {
	out := make([]*models.RedemptionRequest, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeRedemptionRepo) ListOpen(ctx context.Context) ([]*models.RedemptionRequest, error) {
	var out []*models.RedemptionRequest
	for _, row := range r.list() {
		if row.Status == models.RedemptionStatusRequested {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeRedemptionRepo) FindByRedeemer(ctx context.Context, redeemer string, page, limit int) ([]*models.RedemptionRequest, int64, error) {
	var out []*models.RedemptionRequest
	for _, row := range r.list() {
		if row.Redeemer == redeemer {
			out = append(out, row)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRedemptionRepo) FindByVault(ctx context.Context, vault string, page, limit int) ([]*models.RedemptionRequest, int64, error) {
	var out []*models.RedemptionRequest
	for _, row := range r.list() {
		if row.Vault == vault {
			out = append(out, row)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRedemptionRepo) FindOpenPastDeadline(ctx context.Context, block uint64, timestamp uint64) ([]*models.RedemptionRequest, error) {
	var out []*models.RedemptionRequest
	for _, row := range r.list() {
		if row.Status == models.RedemptionStatusRequested &&
			row.LastUnderlyingBlock < block && row.LastUnderlyingTimestamp < timestamp {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakePaymentRepo struct {
	records []*models.PaymentRecord
	block   *models.UnderlyingBlock
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{}
}

func (r *fakePaymentRepo) Create(ctx context.Context, record *models.PaymentRecord) error {
	cp := *record
	r.records = append(r.records, &cp)
	return nil
}

func (r *fakePaymentRepo) Exists(ctx context.Context, txHash, sourceHash string) (bool, error) {
	for _, rec := range r.records {
		if rec.TransactionHash == txHash && rec.SourceHash == sourceHash {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePaymentRepo) ListAll(ctx context.Context) ([]*models.PaymentRecord, error) {
	return append([]*models.PaymentRecord(nil), r.records...), nil
}

func (r *fakePaymentRepo) DeleteOlderThan(ctx context.Context, blockNumber uint64) (int64, error) {
	var kept []*models.PaymentRecord
	var deleted int64
	for _, rec := range r.records {
		if rec.BlockNumber < blockNumber {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return deleted, nil
}

func (r *fakePaymentRepo) GetUnderlyingBlock(ctx context.Context) (*models.UnderlyingBlock, error) {
	if r.block == nil {
		return nil, nil
	}
	cp := *r.block
	return &cp, nil
}

func (r *fakePaymentRepo) SaveUnderlyingBlock(ctx context.Context, block *models.UnderlyingBlock) error {
	cp := *block
	r.block = &cp
	return nil
}

type fakeEventRepo struct {
	events       []*models.ProtocolEvent
	challenges   []*models.ChallengeEvent
	liquidations []*models.LiquidationEvent
	snapshots    []*models.PriceSnapshot
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (r *fakeEventRepo) CreateEvent(ctx context.Context, event *models.ProtocolEvent) error {
	cp := *event
	r.events = append(r.events, &cp)
	return nil
}

func (r *fakeEventRepo) FindEventsByVault(ctx context.Context, vault string, page, limit int) ([]*models.ProtocolEvent, int64, error) {
	var out []*models.ProtocolEvent
	for _, e := range r.events {
		if e.Vault == vault {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeEventRepo) FindEventsByType(ctx context.Context, eventType models.ProtocolEventType, page, limit int) ([]*models.ProtocolEvent, int64, error) {
	var out []*models.ProtocolEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeEventRepo) CreateChallenge(ctx context.Context, event *models.ChallengeEvent) error {
	cp := *event
	r.challenges = append(r.challenges, &cp)
	return nil
}

func (r *fakeEventRepo) FindChallengesByVault(ctx context.Context, vault string, page, limit int) ([]*models.ChallengeEvent, int64, error) {
	var out []*models.ChallengeEvent
	for _, e := range r.challenges {
		if e.Vault == vault {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeEventRepo) CreateLiquidation(ctx context.Context, event *models.LiquidationEvent) error {
	cp := *event
	r.liquidations = append(r.liquidations, &cp)
	return nil
}

func (r *fakeEventRepo) FindLiquidationsByVault(ctx context.Context, vault string, page, limit int) ([]*models.LiquidationEvent, int64, error) {
	var out []*models.LiquidationEvent
	for _, e := range r.liquidations {
		if e.Vault == vault {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeEventRepo) CreatePriceSnapshot(ctx context.Context, snapshot *models.PriceSnapshot) error {
	cp := *snapshot
	r.snapshots = append(r.snapshots, &cp)
	return nil
}

func (r *fakeEventRepo) LatestPriceSnapshot(ctx context.Context, symbol string) (*models.PriceSnapshot, error) {
	for i := len(r.snapshots) - 1; i >= 0; i-- {
		if r.snapshots[i].Symbol == symbol {
			cp := *r.snapshots[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeEventRepo) FindPriceSnapshots(ctx context.Context, symbol string, page, limit int) ([]*models.PriceSnapshot, int64, error) {
	var out []*models.PriceSnapshot
	for _, s := range r.snapshots {
		if s.Symbol == symbol {
			out = append(out, s)
		}
	}
	return out, int64(len(out)), nil
}

// newAttestationStub returns an attestation client pointed at a local stub
// that accepts or rejects every proof.
func newAttestationStub(t *testing.T, valid bool) *clients.AttestationClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := clients.VerifyResponse{Valid: valid}
		if !valid {
			msg := "merkle proof rejected"
			resp.ErrorMessage = &msg
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return clients.NewAttestationClient(srv.URL)
}

func testSettings() *core.Settings {
	class := core.CollateralClassSettings{
		MinCollateralRatioBIPS:        15000,
		CCBMinCollateralRatioBIPS:     16000,
		SafetyMinCollateralRatioBIPS:  18000,
		MintingMinCollateralRatioBIPS: 20000,
		TokenDecimals:                 18,
	}
	return &core.Settings{
		LotSizeAMG:                 10,
		AssetMintingGranularityUBA: big.NewInt(10),
		AssetDecimals:              2,
		Vault:                      class,
		Pool:                       class,

		UnderlyingBlocksForPayment:  100,
		UnderlyingSecondsForPayment: 3600,
		AverageBlockTimeMS:          1000,

		MintingFeeBIPS:              100,
		RedemptionFeeBIPS:           200,
		RedemptionDefaultFactorBIPS: 12000,

		MaxRedeemedTickets: 20,

		WithdrawalWaitMinSeconds: 300,
		WithdrawalWindowSeconds:  600,

		CCBTimeSeconds:            1800,
		LiquidationStepSeconds:    90,
		LiquidationFactorBIPS:     []uint32{12000, 16000, 20000},
		FullLiquidationFactorStep: 1,

		PaymentChallengeRewardBIPS: 300,
		ConfirmationBlocks:         100,
		DestroyWaitMinSeconds:      3600,
	}
}

// serviceEnv wires a ProtocolService over in-memory repositories and a
// proof-accepting attestation stub.
type serviceEnv struct {
	svc          *ProtocolService
	store        *core.Store
	agents       *fakeAgentRepo
	tickets      *fakeTicketRepo
	reservations *fakeReservationRepo
	redemptions  *fakeRedemptionRepo
	payments     *fakePaymentRepo
	events       *fakeEventRepo
	now          int64
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	settings := testSettings()
	require.NoError(t, settings.Validate())

	env := &serviceEnv{
		agents:       newFakeAgentRepo(),
		tickets:      newFakeTicketRepo(),
		reservations: newFakeReservationRepo(),
		redemptions:  newFakeRedemptionRepo(),
		payments:     newFakePaymentRepo(),
		events:       newFakeEventRepo(),
		now:          testEpoch,
	}

	store := core.NewStore(settings)
	store.Clock = func() int64 { return env.now }
	store.SetAssetPrice(core.Price{Value: big.NewInt(500), Decimals: 2, Timestamp: uint64(testEpoch)})
	store.SetTokenPrice(core.CollateralVault, core.Price{Value: big.NewInt(100), Decimals: 2, Timestamp: uint64(testEpoch)})
	store.SetTokenPrice(core.CollateralPool, core.Price{Value: big.NewInt(100), Decimals: 2, Timestamp: uint64(testEpoch)})
	store.UpdateCurrentBlock(core.BlockHeightProof{BlockNumber: 1000, BlockTimestamp: uint64(testEpoch)})
	env.store = store

	env.svc = NewProtocolService(
		store,
		env.agents,
		env.tickets,
		env.reservations,
		env.redemptions,
		env.payments,
		env.events,
		newAttestationStub(t, true),
		nil,
		nil,
	)
	return env
}

// newAgent registers a publicly available agent with 1000 tokens of each
// collateral kind.
func (e *serviceEnv) newAgent(t *testing.T, vault string) *core.Agent {
	t.Helper()
	ctx := context.Background()
	a, err := e.svc.CreateAgent(ctx, "owner-"+vault, vault, "UNDERLYING_"+vault)
	require.NoError(t, err)
	require.NoError(t, e.svc.DepositCollateral(ctx, vault, core.CollateralVault, tokens(1000)))
	require.NoError(t, e.svc.DepositCollateral(ctx, vault, core.CollateralPool, tokens(1000)))
	require.NoError(t, e.svc.SetPubliclyAvailable(ctx, a.Owner, vault, true))
	return a
}

func (e *serviceEnv) mintingProof(r *core.CollateralReservation, received *big.Int, tx uint64) core.PaymentProof {
	return core.PaymentProof{
		TransactionID:        txID(tx),
		SourceAddressHash:    core.UnderlyingAddressHash("minter-wallet"),
		ReceivingAddressHash: core.UnderlyingAddressHash(r.PaymentAddress),
		SpentUBA:             new(big.Int).Set(received),
		ReceivedUBA:          new(big.Int).Set(received),
		PaymentReference:     r.PaymentReference,
		BlockNumber:          r.FirstUnderlyingBlock + 1,
		BlockTimestamp:       uint64(e.now),
	}
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func txID(n uint64) common.Hash {
	var h common.Hash
	h[0] = 0xdd
	binary.BigEndian.PutUint64(h[24:], n)
	return h
}
