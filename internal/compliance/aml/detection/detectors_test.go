package detection

import (
	"testing"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(prior *testutil.TradeFixture, fs ...testutil.TradeFixture) *Window {
	w := &Window{
		UserID: "u1",
		Now:    testutil.Now,
		Since:  testutil.Now.Add(-24 * time.Hour),
		Trades: testutil.Trades(fs...),
	}
	if prior != nil {
		p := prior.Trade()
		w.PriorTrade = &p
	}
	return w
}

func TestVelocityDetector(t *testing.T) {
	cfg := aml.DefaultConfig().Detection.Velocity
	d := NewVelocityDetector(cfg)

	var fs []testutil.TradeFixture
	for i, id := range testutil.Seq("t", 20) {
		fs = append(fs, testutil.Buy(id, "u1", 100, time.Duration(i+1)*time.Minute))
	}

	t.Run("fires at threshold", func(t *testing.T) {
		got := d.Detect(window(nil, fs...))
		require.Len(t, got, 1)
		assert.Equal(t, aml.ReasonHighVelocity, got[0].Reason)
		assert.Equal(t, 65, got[0].RiskScore)
		assert.Len(t, got[0].RelatedTradeIDs, 20)
		assert.Equal(t, 20, got[0].Evidence["trade_count"])
		assert.True(t, got[0].TotalValueUSD.Equal(decimal.NewFromInt(2000)))
	})

	t.Run("one short stays silent", func(t *testing.T) {
		assert.Empty(t, d.Detect(window(nil, fs[:19]...)))
	})

	t.Run("older trades do not count", func(t *testing.T) {
		old := append([]testutil.TradeFixture{}, fs[:19]...)
		old = append(old, testutil.Buy("old", "u1", 100, 61*time.Minute))
		assert.Empty(t, d.Detect(window(nil, old...)))
	})
}

func TestLargeTransactionDetector(t *testing.T) {
	d := NewLargeTransactionDetector(aml.DefaultConfig().Detection.LargeTransaction)

	got := d.Detect(window(nil,
		testutil.Buy("a", "u1", 10000, 3*time.Hour),
		testutil.Sell("b", "u1", 9999.99, 2*time.Hour),
		testutil.Sell("c", "u1", 25000, time.Hour),
	))

	require.Len(t, got, 2)
	assert.Equal(t, []string{"a"}, got[0].RelatedTradeIDs)
	assert.Equal(t, []string{"c"}, got[1].RelatedTradeIDs)
	assert.Equal(t, 70, got[0].RiskScore)
	assert.True(t, got[1].TotalValueUSD.Equal(decimal.NewFromInt(25000)))
	assert.Equal(t, "10000.00", got[0].Evidence["amount_usd"])
}

func TestStructuringDetector(t *testing.T) {
	d := NewStructuringDetector(aml.DefaultConfig().Detection.Structuring)

	t.Run("three sub-threshold trades above aggregate", func(t *testing.T) {
		got := d.Detect(window(nil,
			testutil.Buy("a", "u1", 9200, 5*time.Hour),
			testutil.Buy("b", "u1", 9400, 3*time.Hour),
			testutil.Buy("c", "u1", 9100, time.Hour),
		))
		require.Len(t, got, 1)
		assert.Equal(t, 85, got[0].RiskScore)
		assert.True(t, got[0].TotalValueUSD.Equal(decimal.NewFromInt(27700)))
		assert.ElementsMatch(t, []string{"a", "b", "c"}, got[0].RelatedTradeIDs)
	})

	t.Run("large trade is excluded from the candidate set", func(t *testing.T) {
		got := d.Detect(window(nil,
			testutil.Buy("a", "u1", 9200, 5*time.Hour),
			testutil.Buy("b", "u1", 9400, 3*time.Hour),
			testutil.Buy("big", "u1", 12000, 2*time.Hour),
		))
		assert.Empty(t, got)
	})

	t.Run("aggregate below threshold", func(t *testing.T) {
		got := d.Detect(window(nil,
			testutil.Buy("a", "u1", 8000, 5*time.Hour),
			testutil.Buy("b", "u1", 8000, 3*time.Hour),
			testutil.Buy("c", "u1", 8000, time.Hour),
		))
		assert.Empty(t, got)
	})

	t.Run("ceiling is inclusive", func(t *testing.T) {
		got := d.Detect(window(nil,
			testutil.Buy("a", "u1", 9500, 5*time.Hour),
			testutil.Buy("b", "u1", 9500, 3*time.Hour),
			testutil.Buy("c", "u1", 9500, time.Hour),
		))
		require.Len(t, got, 1)
		assert.True(t, got[0].TotalValueUSD.Equal(decimal.NewFromInt(28500)))
	})
}

func TestRapidMovementDetector(t *testing.T) {
	d := NewRapidMovementDetector(aml.DefaultConfig().Detection.RapidMovement)

	t.Run("in and out above minimum", func(t *testing.T) {
		got := d.Detect(window(nil,
			testutil.Buy("a", "u1", 6000, 3*time.Hour),
			testutil.Sell("b", "u1", 5800, time.Hour),
		))
		require.Len(t, got, 1)
		assert.Equal(t, 75, got[0].RiskScore)
		assert.True(t, got[0].TotalValueUSD.Equal(decimal.NewFromInt(5800)))
		assert.ElementsMatch(t, []string{"a", "b"}, got[0].RelatedTradeIDs)
	})

	t.Run("minimum is exclusive", func(t *testing.T) {
		got := d.Detect(window(nil,
			testutil.Buy("a", "u1", 6000, 3*time.Hour),
			testutil.Sell("b", "u1", 5000, time.Hour),
		))
		assert.Empty(t, got)
	})

	t.Run("buy outside window", func(t *testing.T) {
		got := d.Detect(window(nil,
			testutil.Buy("a", "u1", 6000, 5*time.Hour),
			testutil.Sell("b", "u1", 5800, time.Hour),
		))
		assert.Empty(t, got)
	})
}

func TestDormantAccountDetector(t *testing.T) {
	d := NewDormantAccountDetector(aml.DefaultConfig().Detection.DormantAccount)
	assert.True(t, d.NeedsPriorTrade())

	prior := testutil.Buy("p", "u1", 50, 120*24*time.Hour)

	t.Run("burst after dormancy", func(t *testing.T) {
		got := d.Detect(window(&prior,
			testutil.Buy("a", "u1", 8000, 2*time.Hour),
			testutil.Buy("b", "u1", 7000, time.Hour),
		))
		require.Len(t, got, 1)
		assert.Equal(t, aml.ReasonDormantAccountSpike, got[0].Reason)
		assert.Equal(t, 80, got[0].RiskScore)
		assert.True(t, got[0].TotalValueUSD.Equal(decimal.NewFromInt(15000)))
		assert.Equal(t, 119, got[0].Evidence["dormant_days"])
	})

	t.Run("new account abstains", func(t *testing.T) {
		got := d.Detect(window(nil, testutil.Buy("a", "u1", 50000, time.Hour)))
		assert.Empty(t, got)
	})

	t.Run("recent prior trade", func(t *testing.T) {
		recent := testutil.Buy("p", "u1", 50, 30*24*time.Hour)
		got := d.Detect(window(&recent, testutil.Buy("a", "u1", 50000, time.Hour)))
		assert.Empty(t, got)
	})

	t.Run("value must strictly exceed threshold", func(t *testing.T) {
		got := d.Detect(window(&prior, testutil.Buy("a", "u1", 10000, time.Hour)))
		assert.Empty(t, got)
	})
}

func TestWindowTradesSince(t *testing.T) {
	w := window(nil,
		testutil.Buy("a", "u1", 1, 3*time.Hour),
		testutil.Buy("b", "u1", 1, 2*time.Hour),
		testutil.Buy("c", "u1", 1, time.Hour),
	)
	got := w.TradesSince(testutil.Now.Add(-2 * time.Hour))
	assert.Equal(t, []string{"b", "c"}, tradeIDs(got))
	assert.Empty(t, w.TradesSince(testutil.Now))
}
