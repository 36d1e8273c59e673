package dto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentProofToCore(t *testing.T) {
	req := &PaymentProofRequest{
		TransactionID:        "0xddaa000000000000000000000000000000000000000000000000000000000001",
		SourceAddressHash:    "0x1111111111111111111111111111111111111111111111111111111111111111",
		ReceivingAddressHash: "0x2222222222222222222222222222222222222222222222222222222222222222",
		SpentUBA:             "123456789012345678901234567890",
		ReceivedUBA:          "500",
		PaymentReference:     "0x4642505266410001000000000000000000000000000000000000000000000007",
		BlockNumber:          1200,
		BlockTimestamp:       1_700_000_500,
		MerkleProof:          "0xabcd",
	}

	proof, err := req.ToCore()
	require.NoError(t, err)

	assert.Equal(t, common.HexToHash(req.TransactionID), proof.TransactionID)
	assert.Equal(t, common.HexToHash(req.PaymentReference), proof.PaymentReference)
	assert.Equal(t, "123456789012345678901234567890", proof.SpentUBA.String())
	assert.Equal(t, "500", proof.ReceivedUBA.String())
	assert.Equal(t, uint64(1200), proof.BlockNumber)
	assert.False(t, proof.Failed)
}

func TestPaymentProofRejectsMalformedAmounts(t *testing.T) {
	base := PaymentProofRequest{
		TransactionID:        "0xdd01",
		SourceAddressHash:    "0x11",
		ReceivingAddressHash: "0x22",
		SpentUBA:             "100",
		ReceivedUBA:          "100",
		PaymentReference:     "0x33",
	}

	for _, bad := range []string{"", "-5", "1e18", "0x64", "12.5", "ten"} {
		req := base
		req.ReceivedUBA = bad
		_, err := req.ToCore()
		assert.Error(t, err, "received_uba %q should be rejected", bad)

		req = base
		req.SpentUBA = bad
		_, err = req.ToCore()
		assert.Error(t, err, "spent_uba %q should be rejected", bad)
	}
}

func TestNonPaymentProofToCore(t *testing.T) {
	req := &NonPaymentProofRequest{
		DestinationAddressHash: "0x2222222222222222222222222222222222222222222222222222222222222222",
		PaymentReference:       "0x4642505266410001000000000000000000000000000000000000000000000009",
		AmountUBA:              "250000",
		LowerBoundaryBlock:     1000,
		FirstOverflowBlock:     1101,
		FirstOverflowTimestamp: 1_700_001_000,
	}

	proof, err := req.ToCore()
	require.NoError(t, err)
	assert.Equal(t, "250000", proof.AmountUBA.String())
	assert.Equal(t, uint64(1101), proof.FirstOverflowBlock)

	req.AmountUBA = "-1"
	_, err = req.ToCore()
	assert.Error(t, err)
}
