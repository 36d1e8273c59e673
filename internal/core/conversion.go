package core

import (
	"fmt"
	"math/big"
)

// AMGTokenWeiPriceScale is the fixed-point scale of the AMG -> token-wei
// price: price values carry 9 extra decimal places, and the final division
// in AMGToTokenWei floors. Keeping the scale in one constant preserves the
// rounding behavior everywhere the price is applied.
var AMGTokenWeiPriceScale = new(big.Int).SetUint64(1_000_000_000)

// Price is one oracle quote: integer value with a decimals exponent. Both
// quotes fed into AMGTokenWeiPrice must share the same quote currency (USD).
type Price struct {
	Value     *big.Int
	Decimals  uint8
	Timestamp uint64
}

// Conversion bundles the settings and the two oracle quotes every monetary
// computation needs. Pure value: no side effects anywhere in this file.
type Conversion struct {
	Settings   *Settings
	AssetPrice Price // managed asset / USD
	TokenPrice Price // collateral token / USD
	kind       CollateralKind
}

// NewConversion builds the conversion context for one collateral kind.
func NewConversion(settings *Settings, assetPrice, tokenPrice Price, kind CollateralKind) *Conversion {
	return &Conversion{Settings: settings, AssetPrice: assetPrice, TokenPrice: tokenPrice, kind: kind}
}

// AMGTokenWeiPrice combines the two oracle quotes into a scaled fixed-point
// price of one AMG in collateral token wei:
//
//	price = assetPrice * 10^tokenDecimals * granularityUBA * SCALE
//	        / (tokenPrice * 10^(assetDecimals + assetPriceDec - tokenPriceDec))
//
// Oracle magnitudes are bounded below 2^128 and the granularity constants
// are 64-bit, so the widened big.Int intermediates cannot overflow anything;
// a zero token price is a programming-contract violation.
func (c *Conversion) AMGTokenWeiPrice() *big.Int {
	if c.TokenPrice.Value == nil || c.TokenPrice.Value.Sign() <= 0 {
		panic("core: token price must be positive")
	}
	class := c.Settings.Class(c.kind)
	num := new(big.Int).Set(c.AssetPrice.Value)
	num.Mul(num, pow10(class.TokenDecimals))
	num.Mul(num, c.Settings.AssetMintingGranularityUBA)
	num.Mul(num, AMGTokenWeiPriceScale)
	den := new(big.Int).Set(c.TokenPrice.Value)
	den.Mul(den, pow10(c.Settings.AssetDecimals))
	// normalize differing oracle decimals onto the denominator/numerator
	if c.AssetPrice.Decimals > c.TokenPrice.Decimals {
		den.Mul(den, pow10(c.AssetPrice.Decimals-c.TokenPrice.Decimals))
	} else if c.TokenPrice.Decimals > c.AssetPrice.Decimals {
		num.Mul(num, pow10(c.TokenPrice.Decimals-c.AssetPrice.Decimals))
	}
	return num.Quo(num, den)
}

// AMGToTokenWei converts an AMG amount to collateral wei: amg * price /
// SCALE, floor on the final division.
func (c *Conversion) AMGToTokenWei(amg AMG) *big.Int {
	r := new(big.Int).SetUint64(amg)
	r.Mul(r, c.AMGTokenWeiPrice())
	return r.Quo(r, AMGTokenWeiPriceScale)
}

// TokenWeiToAMG is the floor inverse of AMGToTokenWei. The result must fit
// 64 bits given agreed input bounds.
func (c *Conversion) TokenWeiToAMG(wei *big.Int) AMG {
	price := c.AMGTokenWeiPrice()
	if price.Sign() <= 0 {
		panic("core: AMG price must be positive")
	}
	r := new(big.Int).Mul(wei, AMGTokenWeiPriceScale)
	r.Quo(r, price)
	return bigUint64(r)
}

// AMGToUBA converts AMG to underlying base units.
func (s *Settings) AMGToUBA(amg AMG) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(amg), s.AssetMintingGranularityUBA)
}

// UBAToAMG floors an underlying amount to whole AMG; residues below one AMG
// become dust at the call sites that round-trip minted amounts.
func (s *Settings) UBAToAMG(uba *big.Int) AMG {
	r := new(big.Int).Quo(uba, s.AssetMintingGranularityUBA)
	return bigUint64(r)
}

// LotsToUBA is lots x lotSizeAMG x granularityUBA.
func (s *Settings) LotsToUBA(lots uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(lots), s.LotSizeUBA())
}

// LotsToAMG panics on 64-bit overflow (programming-contract: lot counts are
// validated at the entry points).
func (s *Settings) LotsToAMG(lots uint64) AMG {
	r := new(big.Int).Mul(new(big.Int).SetUint64(lots), new(big.Int).SetUint64(s.LotSizeAMG))
	if !r.IsUint64() {
		panic(fmt.Sprintf("core: lot count out of range: %d", lots))
	}
	return r.Uint64()
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
