package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/store"
)

type fakeBroker struct {
	usdtFree string
}

func (f *fakeBroker) GetPrice(symbol string) (*broker.PriceTicker, error) { return nil, nil }
func (f *fakeBroker) GetTicker24hr(symbol string) (*broker.Ticker24hr, error) { return nil, nil }
func (f *fakeBroker) GetKlines(symbol, interval string, limit int, startTime, endTime int64) ([]broker.Kline, error) {
	return nil, nil
}
func (f *fakeBroker) GetAccount() (*broker.AccountInfo, error) {
	free := f.usdtFree
	if free == "" {
		free = "5000"
	}
	return &broker.AccountInfo{Balances: []broker.Balance{{Asset: "USDT", Free: free}}}, nil
}
func (f *fakeBroker) PlaceOrder(symbol, side, orderType, quantity, price string) (*broker.Order, error) {
	return nil, nil
}
func (f *fakeBroker) GetOrder(symbol string, orderID int64) (*broker.Order, error) { return nil, nil }
func (f *fakeBroker) GetOpenOrders(symbol string) ([]broker.Order, error)          { return nil, nil }
func (f *fakeBroker) CancelOrder(symbol string, orderID int64) (*broker.Order, error) {
	return nil, nil
}

var _ broker.Broker = (*fakeBroker)(nil)

func baseInput() Input {
	return Input{
		Symbol:       "BTCUSDT",
		Side:         string(models.SideBuy),
		Quantity:     0.01,
		Notional:     300,
		CurrentPrice: 30000,
		Interval:     "1m",
	}
}

func TestGate_Validate_AllChecksPassApprovesAndAutoApproves(t *testing.T) {
	s := store.NewInMemory()
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	in := baseInput()
	in.Notional = 80 // below AutoApprovalThreshold

	result, err := g.Validate(in)
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.True(t, result.AutoApproved)
	assert.Empty(t, result.RejectionReason)
}

func TestGate_Validate_OversizedPositionRejected(t *testing.T) {
	s := store.NewInMemory()
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	in := baseInput()
	in.Notional = 10000

	result, err := g.Validate(in)
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.NotEmpty(t, result.RejectionReason)
	assert.Greater(t, result.RiskScore, 0.0)
}

func TestGate_Validate_TooManyOpenPositionsRejects(t *testing.T) {
	s := store.NewInMemory()
	for i := 0; i < 3; i++ {
		_, err := s.InsertPosition(&models.Position{
			Symbol: "ETHUSDT", Status: models.PositionOpen,
			EntryNotional: decimal.NewFromFloat(100),
		})
		require.NoError(t, err)
	}
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	result, err := g.Validate(baseInput())
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestGate_Validate_SymbolConcentrationBlocksSecondBuy(t *testing.T) {
	s := store.NewInMemory()
	_, err := s.InsertPosition(&models.Position{
		Symbol: "BTCUSDT", Status: models.PositionOpen,
		EntryNotional: decimal.NewFromFloat(100),
	})
	require.NoError(t, err)
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	result, err := g.Validate(baseInput())
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestGate_Validate_SellSkipsSymbolConcentration(t *testing.T) {
	s := store.NewInMemory()
	_, err := s.InsertPosition(&models.Position{
		Symbol: "BTCUSDT", Status: models.PositionOpen,
		EntryNotional: decimal.NewFromFloat(100),
	})
	require.NoError(t, err)
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	in := baseInput()
	in.Side = string(models.SideSell)
	in.Notional = 80

	result, err := g.Validate(in)
	require.NoError(t, err)
	assert.True(t, result.Approved)
}

func TestGate_Validate_InsufficientBalanceRejects(t *testing.T) {
	s := store.NewInMemory()
	g := NewGate(s, &fakeBroker{usdtFree: "10"}, DefaultLimits())

	result, err := g.Validate(baseInput())
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestGate_Validate_DailyLossBreachRejects(t *testing.T) {
	s := store.NewInMemory()
	today := time.Now().UTC().Format("2006-01-02")
	require.NoError(t, s.UpsertAccountSnapshot(models.AccountSnapshot{
		SnapshotDate: today,
		DailyPnL:     decimal.NewFromFloat(-500),
	}))
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	in := baseInput()
	in.Notional = 80
	result, err := g.Validate(in)
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestGate_Validate_EntropyGateBlocksNoisyMarket(t *testing.T) {
	s := store.NewInMemory()
	require.NoError(t, s.UpsertEntropy(models.EntropyReading{
		Symbol: "BTCUSDT", Interval: "1m",
		EntropyRatio: decimal.NewFromFloat(0.95),
		IsTradable:   false,
	}))
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	in := baseInput()
	in.Notional = 80
	result, err := g.Validate(in)
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestGate_Validate_VolatileRegimeBlocksTrade(t *testing.T) {
	s := store.NewInMemory()
	require.NoError(t, s.UpsertRegime(models.Regime{
		Symbol: "BTCUSDT", Interval: "1m",
		Label:      models.RegimeVolatile,
		Confidence: decimal.NewFromFloat(75),
	}))
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	in := baseInput()
	in.Notional = 80
	result, err := g.Validate(in)
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestGate_Validate_QuantSizeExceedsToleranceBlocks(t *testing.T) {
	s := store.NewInMemory()
	require.NoError(t, s.UpsertSizing(models.SizingRecommendation{
		Symbol:          "BTCUSDT",
		RecommendedSize: decimal.NewFromFloat(50),
		HardCap:         decimal.NewFromFloat(500),
	}))
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	in := baseInput()
	in.Notional = 200 // exceeds 1.5x of 50
	result, err := g.Validate(in)
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestGate_Validate_RecordsRiskEventPerFailedCheck(t *testing.T) {
	s := store.NewInMemory()
	g := NewGate(s, &fakeBroker{}, DefaultLimits())

	in := baseInput()
	in.Notional = 10000

	_, err := g.Validate(in)
	require.NoError(t, err)

	events, err := s.ListRiskEvents(0)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestRiskScore_ClampedAtHundred(t *testing.T) {
	checks := []RiskCheck{{Passed: false}, {Passed: false}, {Passed: false}, {Passed: false}, {Passed: false}}
	score := riskScore(checks, 1000, 500, 5, 0)
	assert.Equal(t, 100.0, score)
}
