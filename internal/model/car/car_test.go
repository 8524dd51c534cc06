package car

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPredictionConvertsExactly(t *testing.T) {
	for _, foreign := range []float64{0, 1, 12000, 12345.67, 99999.5} {
		p := NewPrediction(foreign)
		assert.Equal(t, foreign*19500, p.PriceLocal)
		assert.Equal(t, foreign, p.PriceForeign)
	}
}

func TestTierBoundaries(t *testing.T) {
	assert.Equal(t, TierLow, TierFor(150_000_000))
	assert.Equal(t, TierLow, TierFor(199_999_999.99))
	assert.Equal(t, TierMid, TierFor(200_000_000))
	assert.Equal(t, TierMid, TierFor(499_999_999))
	assert.Equal(t, TierHigh, TierFor(500_000_000))
}

func TestNewPredictionMessage(t *testing.T) {
	p := NewPrediction(12000)

	assert.Equal(t, float64(234_000_000), p.PriceLocal)
	assert.Equal(t, TierMid, p.Tier)
	assert.Equal(t, "💰 **Predicted car price:** Rp 234,000,000 (≈ £12,000)", p.Message)
}

func TestNewPredictionMessageForHugeOutput(t *testing.T) {
	p := NewPrediction(1e16)

	assert.Equal(t, TierHigh, p.Tier)
	assert.Equal(t, "🚀 **Predicted car price:** Rp 195,000,000,000,000,000,000 (≈ £10,000,000,000,000,000)", p.Message)
	assert.Equal(t, "Rp 1,235", FormatRupiah(1234.5))
}

func TestMarkers(t *testing.T) {
	assert.Equal(t, "💸", TierLow.Marker())
	assert.Equal(t, "💰", TierMid.Marker())
	assert.Equal(t, "🚀", TierHigh.Marker())
}

func TestDefaultRecordIsValid(t *testing.T) {
	require.NoError(t, DefaultRecord().Validate())
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	rec := DefaultRecord()
	rec.Year = 1989
	rec.EngineSize = 6.1
	rec.FuelType = "Coal"

	err := rec.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRecord))
	assert.Contains(t, err.Error(), "year")
	assert.Contains(t, err.Error(), "engineSize")
	assert.Contains(t, err.Error(), "Coal")
}

func TestValidateAcceptsBounds(t *testing.T) {
	rec := Record{
		Model:        "Golf",
		Year:         2025,
		Transmission: SemiAuto,
		Mileage:      300000,
		FuelType:     Electric,
		Tax:          0,
		MPG:          200,
		EngineSize:   0.5,
	}
	assert.NoError(t, rec.Validate())
}
