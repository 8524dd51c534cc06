package car

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// ConversionRate converts the model's GBP output to IDR.
const ConversionRate = 19500

const (
	lowTierCeiling = 200_000_000
	midTierCeiling = 500_000_000
)

// Tier is a display-only price band.
type Tier string

const (
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// TierFor picks the band for a local-currency price. Only prices strictly
// below 200M are low.
func TierFor(local float64) Tier {
	switch {
	case local < lowTierCeiling:
		return TierLow
	case local < midTierCeiling:
		return TierMid
	default:
		return TierHigh
	}
}

// Marker returns the emoji shown next to the price.
func (t Tier) Marker() string {
	switch t {
	case TierLow:
		return "💸"
	case TierMid:
		return "💰"
	default:
		return "🚀"
	}
}

// Prediction is the current price estimate for a session.
type Prediction struct {
	PriceForeign float64 `json:"priceForeign"`
	PriceLocal   float64 `json:"priceLocal"`
	Tier         Tier    `json:"tier"`
	Message      string  `json:"message"`
}

// NewPrediction derives the local price, tier and display message from the
// model's raw output.
func NewPrediction(foreign float64) Prediction {
	local := foreign * ConversionRate
	tier := TierFor(local)
	return Prediction{
		PriceForeign: foreign,
		PriceLocal:   local,
		Tier:         tier,
		Message:      fmt.Sprintf("%s **Predicted car price:** %s (≈ %s)", tier.Marker(), FormatRupiah(local), FormatPound(foreign)),
	}
}

// FormatRupiah renders an IDR amount rounded to whole rupiah, e.g. "Rp 234,000,000".
func FormatRupiah(v float64) string {
	return "Rp " + humanize.Commaf(math.Round(v))
}

// FormatPound renders a GBP amount rounded to whole pounds, e.g. "£12,000".
func FormatPound(v float64) string {
	return "£" + humanize.Commaf(math.Round(v))
}
