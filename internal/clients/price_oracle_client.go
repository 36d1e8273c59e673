package clients

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fasset-backend/internal/config"
)

// PriceOracleClient price feed service client
type PriceOracleClient struct {
	BaseURL string
	Client  *http.Client
}

// NewPriceOracleClient creates a new price oracle client
func NewPriceOracleClient(baseURL string) *PriceOracleClient {
	timeout := 10 * time.Second

	if config.AppConfig != nil && config.AppConfig.Oracle.Timeout > 0 {
		timeout = time.Duration(config.AppConfig.Oracle.Timeout) * time.Second
	}

	client := &PriceOracleClient{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
	}

	fmt.Printf("🔧 [Oracle] Create client: BaseURL=%s, Timeout=%v\n", baseURL, timeout)

	return client
}

// PriceResponse oracle price API response
type PriceResponse struct {
	Symbol    string `json:"symbol"`
	Value     string `json:"value"` // integer price in oracle units
	Decimals  uint8  `json:"decimals"`
	Timestamp int64  `json:"timestamp"`
}

// GetPrice fetches the latest price for one symbol
func (c *PriceOracleClient) GetPrice(symbol string) (*PriceResponse, error) {
	url := fmt.Sprintf("%s/api/v1/price?symbol=%s", c.BaseURL, symbol)

	resp, err := c.Client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("oracle returned status %d for %s: %s", resp.StatusCode, symbol, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle response: %w", err)
	}

	var price PriceResponse
	if err := json.Unmarshal(body, &price); err != nil {
		return nil, fmt.Errorf("failed to parse oracle response: %w", err)
	}

	if price.Value == "" {
		return nil, fmt.Errorf("oracle returned empty price for %s", symbol)
	}

	return &price, nil
}
