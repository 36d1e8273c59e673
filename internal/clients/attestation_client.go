package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fasset-backend/internal/config"
)

// AttestationClient underlying-chain attestation service client. Every
// payment fact entering the protocol must carry an attested proof; the
// service only checks proof validity, matching against open requests is
// done by the protocol state machine.
type AttestationClient struct {
	BaseURL string
	Client  *http.Client
}

// NewAttestationClient creates a new attestation client
func NewAttestationClient(baseURL string) *AttestationClient {
	timeout := 30 * time.Second

	if config.AppConfig != nil && config.AppConfig.Attestation.Timeout > 0 {
		timeout = time.Duration(config.AppConfig.Attestation.Timeout) * time.Second
	}

	client := &AttestationClient{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
	}

	fmt.Printf("🔧 [Attestation] Create client: BaseURL=%s, Timeout=%v\n", baseURL, timeout)

	return client
}

// PaymentProofRequest attested payment verification request
type PaymentProofRequest struct {
	TransactionHash      string `json:"transaction_hash"`
	SourceAddressHash    string `json:"source_address_hash"`
	ReceivingAddressHash string `json:"receiving_address_hash"`
	SpentAmount          string `json:"spent_amount"`
	ReceivedAmount       string `json:"received_amount"`
	PaymentReference     string `json:"payment_reference"`
	BlockNumber          uint64 `json:"block_number"`
	BlockTimestamp       uint64 `json:"block_timestamp"`
	Failed               bool   `json:"failed"`
	MerkleProof          string `json:"merkle_proof"`
}

// BalanceDecreasingProofRequest attested balance-decreasing verification request
type BalanceDecreasingProofRequest struct {
	TransactionHash   string `json:"transaction_hash"`
	SourceAddressHash string `json:"source_address_hash"`
	SpentAmount       string `json:"spent_amount"`
	PaymentReference  string `json:"payment_reference"`
	BlockNumber       uint64 `json:"block_number"`
	BlockTimestamp    uint64 `json:"block_timestamp"`
	MerkleProof       string `json:"merkle_proof"`
}

// NonPaymentProofRequest attested referenced-payment-nonexistence verification request
type NonPaymentProofRequest struct {
	ReceivingAddressHash   string `json:"receiving_address_hash"`
	PaymentReference       string `json:"payment_reference"`
	Amount                 string `json:"amount"`
	LowerBoundaryBlock     uint64 `json:"lower_boundary_block"`
	OverflowBlock          uint64 `json:"overflow_block"`
	OverflowBlockTimestamp uint64 `json:"overflow_block_timestamp"`
	MerkleProof            string `json:"merkle_proof"`
}

// BlockHeightProofRequest attested confirmed-block-height verification request
type BlockHeightProofRequest struct {
	BlockNumber    uint64 `json:"block_number"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	MerkleProof    string `json:"merkle_proof"`
}

// VerifyResponse attestation verification response
type VerifyResponse struct {
	Valid        bool    `json:"valid"`
	ErrorMessage *string `json:"error_message"`
}

// VerifyPayment checks an attested payment proof
func (c *AttestationClient) VerifyPayment(req *PaymentProofRequest) error {
	return c.verify("/api/v1/verify/payment", req)
}

// VerifyBalanceDecreasing checks an attested balance-decreasing proof
func (c *AttestationClient) VerifyBalanceDecreasing(req *BalanceDecreasingProofRequest) error {
	return c.verify("/api/v1/verify/balance-decreasing", req)
}

// VerifyNonPayment checks an attested referenced-payment-nonexistence proof
func (c *AttestationClient) VerifyNonPayment(req *NonPaymentProofRequest) error {
	return c.verify("/api/v1/verify/non-payment", req)
}

// VerifyBlockHeight checks an attested confirmed-block-height proof
func (c *AttestationClient) VerifyBlockHeight(req *BlockHeightProofRequest) error {
	return c.verify("/api/v1/verify/block-height", req)
}

func (c *AttestationClient) verify(path string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal proof: %w", err)
	}

	url := c.BaseURL + path
	resp, err := c.Client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("attestation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read attestation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("attestation service returned status %d: %s", resp.StatusCode, string(body))
	}

	var result VerifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse attestation response: %w", err)
	}

	if !result.Valid {
		msg := "proof rejected"
		if result.ErrorMessage != nil {
			msg = *result.ErrorMessage
		}
		return fmt.Errorf("attestation verification failed: %s", msg)
	}

	return nil
}
