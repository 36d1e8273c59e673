package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"fasset-backend/internal/core"
)

// Config application configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	Oracle      OracleConfig      `yaml:"oracle"`      // price oracle service configuration
	Attestation AttestationConfig `yaml:"attestation"` // payment attestation verifier configuration
	Vault       VaultConfig       `yaml:"vault"`       // collateral vault contract configuration
	CORS        CORSConfig        `yaml:"cors"`        // CORS configuration
	Admin       AdminConfig       `yaml:"admin"`       // Admin API access control configuration
	Auth        AuthConfig        `yaml:"auth"`        // JWT authentication configuration
	Protocol    ProtocolConfig    `yaml:"protocol"`    // protocol settings
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// OracleConfig price oracle service configuration
type OracleConfig struct {
	BaseURL          string `yaml:"baseUrl"`
	Timeout          int    `yaml:"timeout"`
	RefreshSeconds   int    `yaml:"refreshSeconds"`
	AssetSymbol      string `yaml:"assetSymbol"`
	VaultTokenSymbol string `yaml:"vaultTokenSymbol"`
	PoolTokenSymbol  string `yaml:"poolTokenSymbol"`
}

// AttestationConfig payment attestation verifier service configuration
type AttestationConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout int    `yaml:"timeout"`
}

// VaultConfig collateral vault contract configuration
type VaultConfig struct {
	RPCEndpoint     string `yaml:"rpcEndpoint"`
	ContractAddress string `yaml:"contractAddress"`
	PrivateKey      string `yaml:"privateKey"` // hex format, without 0x prefix
	ChainID         int64  `yaml:"chainId"`
	GasLimit        uint64 `yaml:"gasLimit"`
	Enabled         bool   `yaml:"enabled"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`   // List of allowed origins
	AllowCredentials bool     `yaml:"allowCredentials"` // Whether to allow credentials
	MaxAge           int      `yaml:"maxAge"`           // Max age for preflight requests (seconds)
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // List of allowed IP addresses or CIDR ranges
	TOTPSecret string   `yaml:"totpSecret"` // TOTP secret for settings updates
}

// AuthConfig JWT authentication configuration
type AuthConfig struct {
	JWTSecret     string `yaml:"jwtSecret"`
	TokenTTLHours int    `yaml:"tokenTtlHours"`
}

// CollateralClassConfig per-class collateral ratio thresholds in BIPS
type CollateralClassConfig struct {
	MinCollateralRatioBIPS        uint32 `yaml:"minCollateralRatioBips"`
	CCBMinCollateralRatioBIPS     uint32 `yaml:"ccbMinCollateralRatioBips"`
	SafetyMinCollateralRatioBIPS  uint32 `yaml:"safetyMinCollateralRatioBips"`
	MintingMinCollateralRatioBIPS uint32 `yaml:"mintingMinCollateralRatioBips"`
	TokenDecimals                 uint8  `yaml:"tokenDecimals"`
}

// ProtocolConfig protocol settings as they appear in YAML
type ProtocolConfig struct {
	LotSizeAMG                 uint64 `yaml:"lotSizeAmg"`
	AssetMintingGranularityUBA string `yaml:"assetMintingGranularityUba"` // decimal string, may exceed uint64
	AssetDecimals              uint8  `yaml:"assetDecimals"`

	Vault CollateralClassConfig `yaml:"vaultCollateral"`
	Pool  CollateralClassConfig `yaml:"poolCollateral"`

	UnderlyingBlocksForPayment  uint64 `yaml:"underlyingBlocksForPayment"`
	UnderlyingSecondsForPayment uint64 `yaml:"underlyingSecondsForPayment"`
	AverageBlockTimeMS          uint64 `yaml:"averageBlockTimeMs"`

	MintingFeeBIPS              uint32 `yaml:"mintingFeeBips"`
	RedemptionFeeBIPS           uint32 `yaml:"redemptionFeeBips"`
	RedemptionDefaultFactorBIPS uint32 `yaml:"redemptionDefaultFactorBips"`

	MaxRedeemedTickets int `yaml:"maxRedeemedTickets"`

	WithdrawalWaitMinSeconds uint64 `yaml:"withdrawalWaitMinSeconds"`
	WithdrawalWindowSeconds  uint64 `yaml:"withdrawalWindowSeconds"`

	CCBTimeSeconds            uint64   `yaml:"ccbTimeSeconds"`
	LiquidationStepSeconds    uint64   `yaml:"liquidationStepSeconds"`
	LiquidationFactorBIPS     []uint32 `yaml:"liquidationFactorBips"`
	FullLiquidationFactorStep int      `yaml:"fullLiquidationFactorStep"`

	PaymentChallengeRewardBIPS uint32 `yaml:"paymentChallengeRewardBips"`
	ConfirmationBlocks         uint64 `yaml:"confirmationBlocks"`
	DestroyWaitMinSeconds      uint64 `yaml:"destroyWaitMinSeconds"`
}

var AppConfig *Config

// LoadConfig loads the configuration file, applies environment overrides and
// validates the protocol settings.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)

	if _, err := config.Protocol.Settings(); err != nil {
		return fmt.Errorf("invalid protocol settings: %w", err)
	}

	log.Printf("📋 [Config] Oracle: BaseURL=%s, refresh=%ds", config.Oracle.BaseURL, config.Oracle.RefreshSeconds)
	log.Printf("📋 [Config] Attestation verifier: BaseURL=%s", config.Attestation.BaseURL)
	if len(config.Admin.AllowedIPs) > 0 {
		log.Printf("📋 [Config] Admin IP whitelist: %d IPs/CIDRs configured", len(config.Admin.AllowedIPs))
	} else {
		log.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)")
	}

	AppConfig = &config
	return nil
}

// Settings converts the YAML protocol section into validated core settings.
func (p *ProtocolConfig) Settings() (*core.Settings, error) {
	granularity, ok := new(big.Int).SetString(p.AssetMintingGranularityUBA, 10)
	if !ok || granularity.Sign() <= 0 {
		return nil, fmt.Errorf("assetMintingGranularityUba is not a positive decimal integer: %q", p.AssetMintingGranularityUBA)
	}
	s := &core.Settings{
		LotSizeAMG:                 p.LotSizeAMG,
		AssetMintingGranularityUBA: granularity,
		AssetDecimals:              p.AssetDecimals,

		Vault: classSettings(p.Vault),
		Pool:  classSettings(p.Pool),

		UnderlyingBlocksForPayment:  p.UnderlyingBlocksForPayment,
		UnderlyingSecondsForPayment: p.UnderlyingSecondsForPayment,
		AverageBlockTimeMS:          p.AverageBlockTimeMS,

		MintingFeeBIPS:              p.MintingFeeBIPS,
		RedemptionFeeBIPS:           p.RedemptionFeeBIPS,
		RedemptionDefaultFactorBIPS: p.RedemptionDefaultFactorBIPS,

		MaxRedeemedTickets: p.MaxRedeemedTickets,

		WithdrawalWaitMinSeconds: p.WithdrawalWaitMinSeconds,
		WithdrawalWindowSeconds:  p.WithdrawalWindowSeconds,

		CCBTimeSeconds:            p.CCBTimeSeconds,
		LiquidationStepSeconds:    p.LiquidationStepSeconds,
		LiquidationFactorBIPS:     p.LiquidationFactorBIPS,
		FullLiquidationFactorStep: p.FullLiquidationFactorStep,

		PaymentChallengeRewardBIPS: p.PaymentChallengeRewardBIPS,
		ConfirmationBlocks:         p.ConfirmationBlocks,
		DestroyWaitMinSeconds:      p.DestroyWaitMinSeconds,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func classSettings(c CollateralClassConfig) core.CollateralClassSettings {
	return core.CollateralClassSettings{
		MinCollateralRatioBIPS:        c.MinCollateralRatioBIPS,
		CCBMinCollateralRatioBIPS:     c.CCBMinCollateralRatioBIPS,
		SafetyMinCollateralRatioBIPS:  c.SafetyMinCollateralRatioBIPS,
		MintingMinCollateralRatioBIPS: c.MintingMinCollateralRatioBIPS,
		TokenDecimals:                 c.TokenDecimals,
	}
}

// overrideFromEnv applies environment variable overrides
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if oracleURL := os.Getenv("ORACLE_BASE_URL"); oracleURL != "" {
		config.Oracle.BaseURL = oracleURL
	}
	if attestationURL := os.Getenv("ATTESTATION_BASE_URL"); attestationURL != "" {
		config.Attestation.BaseURL = attestationURL
	}

	if rpc := os.Getenv("VAULT_RPC_ENDPOINT"); rpc != "" {
		config.Vault.RPCEndpoint = rpc
	}
	if contract := os.Getenv("VAULT_CONTRACT"); contract != "" {
		config.Vault.ContractAddress = contract
	}
	if privateKey := os.Getenv("VAULT_PRIVATE_KEY"); privateKey != "" {
		config.Vault.PrivateKey = privateKey
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// GetOracleURL returns the price oracle service URL
func GetOracleURL() string {
	if AppConfig != nil && AppConfig.Oracle.BaseURL != "" {
		return AppConfig.Oracle.BaseURL
	}
	if url := os.Getenv("ORACLE_BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:18080"
}

// GetAttestationURL returns the attestation verifier service URL
func GetAttestationURL() string {
	if AppConfig != nil && AppConfig.Attestation.BaseURL != "" {
		return AppConfig.Attestation.BaseURL
	}
	if url := os.Getenv("ATTESTATION_BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:18081"
}
