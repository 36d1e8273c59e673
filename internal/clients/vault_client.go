package clients

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"

	"fasset-backend/internal/config"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// collateral vault contract ABI, payout entry points only
const vaultABI = `[
	{"name":"payoutVault","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"payoutPool","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// VaultClient sends collateral payout transactions to the vault contract.
// State transitions are settled before any payout is sent, so a failed
// payout can be retried without touching protocol state.
type VaultClient struct {
	client    *ethclient.Client
	parsedABI abi.ABI
	contract  common.Address
	chainID   *big.Int
	gasLimit  uint64
	enabled   bool
}

// NewVaultClient creates a new vault client. With Enabled=false the client
// skips the RPC connection and logs payouts instead of sending them.
func NewVaultClient(cfg *config.VaultConfig) (*VaultClient, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault ABI: %w", err)
	}

	vc := &VaultClient{
		parsedABI: parsed,
		contract:  common.HexToAddress(cfg.ContractAddress),
		chainID:   big.NewInt(cfg.ChainID),
		gasLimit:  cfg.GasLimit,
		enabled:   cfg.Enabled,
	}

	if !cfg.Enabled {
		log.Printf("⚠️ [Vault] Client disabled, payouts will be logged only")
		return vc, nil
	}

	client, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vault RPC %s: %w", cfg.RPCEndpoint, err)
	}
	vc.client = client

	log.Printf("🔧 [Vault] Connected: endpoint=%s, contract=%s, chainID=%d",
		cfg.RPCEndpoint, cfg.ContractAddress, cfg.ChainID)

	return vc, nil
}

// PayoutVault pays vault collateral out to a recipient. Returns the
// transaction hash.
func (c *VaultClient) PayoutVault(ctx context.Context, to string, amountWei *big.Int) (string, error) {
	return c.payout(ctx, "payoutVault", to, amountWei)
}

// PayoutPool pays pool collateral out to a recipient. Returns the
// transaction hash.
func (c *VaultClient) PayoutPool(ctx context.Context, to string, amountWei *big.Int) (string, error) {
	return c.payout(ctx, "payoutPool", to, amountWei)
}

func (c *VaultClient) payout(ctx context.Context, method, to string, amountWei *big.Int) (string, error) {
	if !c.enabled {
		log.Printf("💸 [Vault] payout skipped (disabled): method=%s to=%s amount=%s", method, to, amountWei.String())
		return "", nil
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(config.AppConfig.Vault.PrivateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid vault private key: %w", err)
	}
	fromAddress := crypto.PubkeyToAddress(privateKey.PublicKey)

	data, err := c.parsedABI.Pack(method, common.HexToAddress(to), amountWei)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Value:    big.NewInt(0),
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign payout transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send payout transaction: %w", err)
	}

	txHash := signedTx.Hash().Hex()
	log.Printf("💸 [Vault] payout sent: method=%s to=%s amount=%s tx=%s", method, to, amountWei.String(), txHash)

	return txHash, nil
}

// Close releases the RPC connection.
func (c *VaultClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
