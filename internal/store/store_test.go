package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/spotctl/internal/models"
)

func TestProposal_InsertAndGet(t *testing.T) {
	s := NewInMemory()
	p := &models.Proposal{
		Side:     models.SideBuy,
		Symbol:   "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.001),
		Status:   models.ProposalDraft,
	}
	inserted, err := s.InsertProposal(p)
	require.NoError(t, err)
	assert.NotEmpty(t, inserted.ID)
	assert.False(t, inserted.CreatedAt.IsZero())

	got, err := s.GetProposal(inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, inserted.Symbol, got.Symbol)

	// Returned copies must not alias internal state.
	got.Symbol = "MUTATED"
	got2, err := s.GetProposal(inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got2.Symbol)
}

func TestProposal_UpdateOptimisticConcurrency(t *testing.T) {
	s := NewInMemory()
	p, err := s.InsertProposal(&models.Proposal{Status: models.ProposalDraft, Symbol: "BTCUSDT"})
	require.NoError(t, err)

	_, err = s.UpdateProposal(p.ID, models.ProposalValidated, func(pp *models.Proposal) error {
		pp.Status = models.ProposalApproved
		return nil
	})
	assert.ErrorIs(t, err, ErrConflict, "expected status mismatch to be rejected")

	updated, err := s.UpdateProposal(p.ID, models.ProposalDraft, func(pp *models.Proposal) error {
		return pp.Transition(models.ProposalValidated, "validated")
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalValidated, updated.Status)
}

func TestProposal_ListByStatusOrdering(t *testing.T) {
	s := NewInMemory()
	for i := 0; i < 3; i++ {
		_, err := s.InsertProposal(&models.Proposal{Status: models.ProposalApproved, Symbol: "BTCUSDT"})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	list, err := s.ListProposalsByStatus(models.ProposalApproved)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}
}

func TestPosition_UpdateGuardsAgainstConcurrentClose(t *testing.T) {
	s := NewInMemory()
	pos, err := s.InsertPosition(&models.Position{
		Symbol: "BTCUSDT", Status: models.PositionOpen,
		EntryPrice: decimal.NewFromInt(100), EntryQuantity: decimal.NewFromInt(1), CurrentQuantity: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	_, err = s.UpdatePosition(pos.ID, []models.PositionStatus{models.PositionOpen}, func(p *models.Position) error {
		p.Status = models.PositionClosed
		return nil
	})
	require.NoError(t, err)

	_, err = s.UpdatePosition(pos.ID, []models.PositionStatus{models.PositionOpen, models.PositionPartiallyClose}, func(p *models.Position) error {
		p.CurrentPrice = decimal.NewFromInt(200)
		return nil
	})
	assert.ErrorIs(t, err, ErrConflict, "a mark-to-market write must not apply once the position is closed")
}

func TestKline_UpsertIsIdempotent(t *testing.T) {
	s := NewInMemory()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	k := models.Kline{Symbol: "BTCUSDT", Interval: "1h", OpenTime: ts, Close: decimal.NewFromInt(100)}

	require.NoError(t, s.UpsertKline(k))
	require.NoError(t, s.UpsertKline(k))

	n, err := s.CountKlines("BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKline_ListOrderedOldestFirst(t *testing.T) {
	s := NewInMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpsertKline(models.Kline{
			Symbol: "BTCUSDT", Interval: "1h",
			OpenTime: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	list, err := s.ListKlines("BTCUSDT", "1h", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, base.Add(2*time.Hour), list[0].OpenTime)
	assert.Equal(t, base.Add(4*time.Hour), list[2].OpenTime)
}

func TestRiskEvent_AppendOnly(t *testing.T) {
	s := NewInMemory()
	_, err := s.AppendRiskEvent(models.RiskEvent{Type: "position_opened", Severity: models.SeverityInfo})
	require.NoError(t, err)
	_, err = s.AppendRiskEvent(models.RiskEvent{Type: "position_closed", Severity: models.SeverityInfo})
	require.NoError(t, err)

	events, err := s.ListRiskEvents(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "position_closed", events[0].Type, "newest first")
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir)
	require.NoError(t, err)
	_, err = s1.InsertProposal(&models.Proposal{Status: models.ProposalDraft, Symbol: "ETHUSDT"})
	require.NoError(t, err)
	require.NoError(t, s1.UpsertKline(models.Kline{Symbol: "ETHUSDT", Interval: "1h", OpenTime: time.Now().UTC()}))

	s2, err := New(dir)
	require.NoError(t, err)

	list, err := s2.ListProposalsByStatus(models.ProposalDraft)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ETHUSDT", list[0].Symbol)

	n, err := s2.CountKlines("ETHUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
