package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
)

func TestSQLiteRecorderRoundTrip(t *testing.T) {
	ctx := context.Background()
	rec, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer rec.Close()

	p := car.NewPrediction(12000)
	for i, sid := range []string{"s1", "s2"} {
		require.NoError(t, rec.RecordPrediction(ctx, Entry{
			SessionID:    sid,
			Record:       car.DefaultRecord(),
			PriceForeign: p.PriceForeign + float64(i),
			PriceLocal:   p.PriceLocal,
			Tier:         p.Tier,
			CreatedAt:    time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
		}))
	}

	entries, err := rec.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s2", entries[0].SessionID)
	assert.Equal(t, "Audi A1", entries[0].Record.Model)
	assert.Equal(t, car.TierMid, entries[0].Tier)
	assert.Equal(t, 12001.0, entries[0].PriceForeign)
}

func TestNopRecorder(t *testing.T) {
	assert.NoError(t, Nop{}.RecordPrediction(context.Background(), Entry{}))
}
