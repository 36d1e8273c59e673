package services

import (
	"fmt"
	"math/big"

	"fasset-backend/internal/clients"
	"fasset-backend/internal/core"
	"fasset-backend/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Mapping between the in-memory ledger and the persisted rows. The core
// state is authoritative; rows are written through after every state change
// and read back only on startup recovery.

func parseBig(s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func agentToRow(a *core.Agent) *models.Agent {
	return &models.Agent{
		ID:                a.ID,
		Vault:             a.Vault,
		Owner:             a.Owner,
		UnderlyingAddress: a.UnderlyingAddress,
		UnderlyingHash:    a.UnderlyingHash.Hex(),

		ReservedAMG:  a.ReservedAMG,
		MintedAMG:    a.MintedAMG,
		RedeemingAMG: a.RedeemingAMG,
		DustAMG:      a.DustAMG,

		VaultCollateralWei: a.Collateral[core.CollateralVault].String(),
		PoolCollateralWei:  a.Collateral[core.CollateralPool].String(),

		VaultMinCollateralRatioBIPS: a.MinCollateralRatioBIPS[core.CollateralVault],
		PoolMinCollateralRatioBIPS:  a.MinCollateralRatioBIPS[core.CollateralPool],

		FreeUnderlyingUBA: a.FreeUnderlyingUBA.String(),

		Status:                 models.AgentStatus(a.Status),
		CCBStartedAt:           a.CCBStartedAt,
		LiquidationStartedAt:   a.LiquidationStartedAt,
		InitialLiquidationStep: a.InitialLiquidationStep,

		PubliclyAvailable:  a.PubliclyAvailable,
		DestroyAnnouncedAt: a.DestroyAnnouncedAt,

		UnderlyingWithdrawalID:          a.UnderlyingWithdrawalID,
		UnderlyingWithdrawalAnnouncedAt: a.UnderlyingWithdrawalAnnouncedAt,
	}
}

func agentFromRow(row *models.Agent) *core.Agent {
	return &core.Agent{
		ID:                row.ID,
		Vault:             row.Vault,
		Owner:             row.Owner,
		UnderlyingAddress: row.UnderlyingAddress,
		UnderlyingHash:    core.UnderlyingAddressHash(row.UnderlyingAddress),

		ReservedAMG:  row.ReservedAMG,
		MintedAMG:    row.MintedAMG,
		RedeemingAMG: row.RedeemingAMG,
		DustAMG:      row.DustAMG,

		Collateral: map[core.CollateralKind]*big.Int{
			core.CollateralVault: parseBig(row.VaultCollateralWei),
			core.CollateralPool:  parseBig(row.PoolCollateralWei),
		},
		MinCollateralRatioBIPS: map[core.CollateralKind]uint32{
			core.CollateralVault: row.VaultMinCollateralRatioBIPS,
			core.CollateralPool:  row.PoolMinCollateralRatioBIPS,
		},
		Withdrawal: make(map[core.CollateralKind]*core.WithdrawalAnnouncement),

		FreeUnderlyingUBA: parseBig(row.FreeUnderlyingUBA),

		Status:                 core.AgentStatus(row.Status),
		CCBStartedAt:           row.CCBStartedAt,
		LiquidationStartedAt:   row.LiquidationStartedAt,
		InitialLiquidationStep: row.InitialLiquidationStep,

		PubliclyAvailable:  row.PubliclyAvailable,
		DestroyAnnouncedAt: row.DestroyAnnouncedAt,

		UnderlyingWithdrawalID:          row.UnderlyingWithdrawalID,
		UnderlyingWithdrawalAnnouncedAt: row.UnderlyingWithdrawalAnnouncedAt,
	}
}

func reservationToRow(r *core.CollateralReservation, status models.ReservationStatus) *models.CollateralReservation {
	return &models.CollateralReservation{
		ID:     r.ID,
		Vault:  r.Agent,
		Minter: r.Minter,

		ValueAMG: r.ValueAMG,
		ValueUBA: r.ValueUBA.String(),
		FeeUBA:   r.FeeUBA.String(),

		FirstUnderlyingBlock:    r.FirstUnderlyingBlock,
		LastUnderlyingBlock:     r.LastUnderlyingBlock,
		LastUnderlyingTimestamp: r.LastUnderlyingTimestamp,

		PaymentAddress:   r.PaymentAddress,
		PaymentReference: r.PaymentReference.Hex(),
		SelfMint:         r.SelfMint,

		Status: status,
	}
}

func reservationFromRow(row *models.CollateralReservation) *core.CollateralReservation {
	return &core.CollateralReservation{
		ID:     row.ID,
		Agent:  row.Vault,
		Minter: row.Minter,

		ValueAMG: row.ValueAMG,
		ValueUBA: parseBig(row.ValueUBA),
		FeeUBA:   parseBig(row.FeeUBA),

		FirstUnderlyingBlock:    row.FirstUnderlyingBlock,
		LastUnderlyingBlock:     row.LastUnderlyingBlock,
		LastUnderlyingTimestamp: row.LastUnderlyingTimestamp,

		PaymentAddress:   row.PaymentAddress,
		PaymentReference: common.HexToHash(row.PaymentReference),
		SelfMint:         row.SelfMint,

		CreatedAt: row.CreatedAt.Unix(),
	}
}

func redemptionToRow(r *core.RedemptionRequest, status models.RedemptionStatus) *models.RedemptionRequest {
	row := &models.RedemptionRequest{
		ID:       r.ID,
		Vault:    r.Agent,
		Redeemer: r.Redeemer,

		ValueAMG: r.ValueAMG,
		ValueUBA: r.ValueUBA.String(),
		FeeUBA:   r.FeeUBA.String(),

		FirstUnderlyingBlock:    r.FirstUnderlyingBlock,
		LastUnderlyingBlock:     r.LastUnderlyingBlock,
		LastUnderlyingTimestamp: r.LastUnderlyingTimestamp,

		RedeemerAddressHash: r.RedeemerAddressHash.Hex(),
		PaymentReference:    r.PaymentReference.Hex(),

		Status: status,
	}
	if r.Report != nil {
		row.ReportedTransactionHash = r.Report.TransactionID.Hex()
		row.ReportedSpentUBA = r.Report.SpentUBA.String()
		row.ReportedReceivedUBA = r.Report.ReceivedUBA.String()
		row.ReportedBlockNumber = r.Report.BlockNumber
	}
	return row
}

func redemptionFromRow(row *models.RedemptionRequest) *core.RedemptionRequest {
	r := &core.RedemptionRequest{
		ID:       row.ID,
		Agent:    row.Vault,
		Redeemer: row.Redeemer,

		ValueAMG: row.ValueAMG,
		ValueUBA: parseBig(row.ValueUBA),
		FeeUBA:   parseBig(row.FeeUBA),

		FirstUnderlyingBlock:    row.FirstUnderlyingBlock,
		LastUnderlyingBlock:     row.LastUnderlyingBlock,
		LastUnderlyingTimestamp: row.LastUnderlyingTimestamp,

		RedeemerAddressHash: common.HexToHash(row.RedeemerAddressHash),
		PaymentReference:    common.HexToHash(row.PaymentReference),

		CreatedAt: row.CreatedAt.Unix(),
	}
	if row.ReportedTransactionHash != "" {
		r.Report = &core.PaymentReport{
			TransactionID: common.HexToHash(row.ReportedTransactionHash),
			SpentUBA:      parseBig(row.ReportedSpentUBA),
			ReceivedUBA:   parseBig(row.ReportedReceivedUBA),
			BlockNumber:   row.ReportedBlockNumber,
		}
	}
	return r
}

func paymentRecordToRow(rec *core.PaymentRecord) *models.PaymentRecord {
	return &models.PaymentRecord{
		TransactionHash:  rec.Key.TransactionID.Hex(),
		SourceHash:       rec.Key.SourceHash.Hex(),
		PaymentReference: rec.PaymentReference.Hex(),
		SpentUBA:         rec.SpentUBA.String(),
		BlockNumber:      rec.BlockNumber,
	}
}

func paymentRecordFromRow(row *models.PaymentRecord) *core.PaymentRecord {
	return &core.PaymentRecord{
		Key: core.PaymentRecordKey{
			TransactionID: common.HexToHash(row.TransactionHash),
			SourceHash:    common.HexToHash(row.SourceHash),
		},
		PaymentReference: common.HexToHash(row.PaymentReference),
		SpentUBA:         parseBig(row.SpentUBA),
		BlockNumber:      row.BlockNumber,
	}
}

// Attestation request mapping. The attestation service receives the exact
// fields the core will consume, so a proof that verifies is a proof the
// core can trust.

func paymentAttestation(p core.PaymentProof, merkleProof string) *clients.PaymentProofRequest {
	return &clients.PaymentProofRequest{
		TransactionHash:      p.TransactionID.Hex(),
		SourceAddressHash:    p.SourceAddressHash.Hex(),
		ReceivingAddressHash: p.ReceivingAddressHash.Hex(),
		SpentAmount:          p.SpentUBA.String(),
		ReceivedAmount:       p.ReceivedUBA.String(),
		PaymentReference:     p.PaymentReference.Hex(),
		BlockNumber:          p.BlockNumber,
		BlockTimestamp:       p.BlockTimestamp,
		Failed:               p.Failed,
		MerkleProof:          merkleProof,
	}
}

func balanceDecreasingAttestation(p core.BalanceDecreasingProof, merkleProof string) *clients.BalanceDecreasingProofRequest {
	return &clients.BalanceDecreasingProofRequest{
		TransactionHash:   p.TransactionID.Hex(),
		SourceAddressHash: p.SourceAddressHash.Hex(),
		SpentAmount:       p.SpentUBA.String(),
		PaymentReference:  p.PaymentReference.Hex(),
		BlockNumber:       p.BlockNumber,
		BlockTimestamp:    p.BlockTimestamp,
		MerkleProof:       merkleProof,
	}
}

func nonPaymentAttestation(p core.NonPaymentProof, merkleProof string) *clients.NonPaymentProofRequest {
	return &clients.NonPaymentProofRequest{
		ReceivingAddressHash:   p.DestinationAddressHash.Hex(),
		PaymentReference:       p.PaymentReference.Hex(),
		Amount:                 p.AmountUBA.String(),
		LowerBoundaryBlock:     p.LowerBoundaryBlock,
		OverflowBlock:          p.FirstOverflowBlock,
		OverflowBlockTimestamp: p.FirstOverflowTimestamp,
		MerkleProof:            merkleProof,
	}
}

func blockHeightAttestation(p core.BlockHeightProof, merkleProof string) *clients.BlockHeightProofRequest {
	return &clients.BlockHeightProofRequest{
		BlockNumber:    p.BlockNumber,
		BlockTimestamp: p.BlockTimestamp,
		MerkleProof:    merkleProof,
	}
}

func weiByKind(m map[core.CollateralKind]*big.Int, kind core.CollateralKind) string {
	if v, ok := m[kind]; ok && v != nil {
		return v.String()
	}
	return "0"
}

func challengeToRow(res *core.ChallengeResult, kind models.ChallengeKind, txHash string) *models.ChallengeEvent {
	return &models.ChallengeEvent{
		Vault:           res.AgentVault,
		Challenger:      res.Challenger,
		Kind:            kind,
		TransactionHash: txHash,
		VaultRewardWei:  weiByKind(res.RewardWei, core.CollateralVault),
		PoolRewardWei:   weiByKind(res.RewardWei, core.CollateralPool),
	}
}

func liquidationToRow(liquidator string, vault string, res *core.LiquidationResult) *models.LiquidationEvent {
	return &models.LiquidationEvent{
		Vault:          vault,
		Liquidator:     liquidator,
		ClosedUBA:      res.LiquidatedUBA.String(),
		FactorBIPS:     res.FactorBIPS,
		VaultSeizedWei: weiByKind(res.RewardWei, core.CollateralVault),
		PoolSeizedWei:  weiByKind(res.RewardWei, core.CollateralPool),
		ResultStatus:   models.AgentStatus(res.Status),
	}
}

// ParseCollateralKind validates an external collateral kind string.
func ParseCollateralKind(kind string) (core.CollateralKind, error) {
	switch core.CollateralKind(kind) {
	case core.CollateralVault:
		return core.CollateralVault, nil
	case core.CollateralPool:
		return core.CollateralPool, nil
	}
	return "", fmt.Errorf("unknown collateral kind: %s", kind)
}
