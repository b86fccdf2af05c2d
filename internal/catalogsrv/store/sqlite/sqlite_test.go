package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
	"github.com/viewplan/viewplan/internal/common/logtrace"
	"github.com/viewplan/viewplan/internal/common/uuid"
)

func init() {
	logtrace.InitTestLogger()
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := New(":memory:", 4)
	require.Nil(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRecord(name string, deps ...string) *store.ViewRecord {
	return &store.ViewRecord{
		ID:             uuid.New(),
		Name:           name,
		Layer:          catcommon.LayerDiscovery,
		Domain:         catcommon.DomainFraud,
		BaseTables:     []string{"transactions", "accounts"},
		DependsOnViews: deps,
		CreatedAt:      time.Now().UTC(),
		Status:         catcommon.StatusDraft,
		FreshnessType:  catcommon.FreshnessLive,
		IsValid:        true,
		Definition:     "SELECT * FROM transactions JOIN accounts USING (account_id)",
		DefinitionHash: catcommon.HashDefinition("SELECT * FROM transactions JOIN accounts USING (account_id)"),
	}
}

func TestPutGetRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := newRecord("v_fraud_txn_daily")
	rec.Tags = []string{"fraud", "daily"}
	rec.Description = "daily transaction rollup"
	require.Nil(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "v_fraud_txn_daily")
	require.Nil(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.BaseTables, got.BaseTables)
	assert.Equal(t, []string{}, got.DependsOnViews)
	assert.Equal(t, rec.Tags, got.Tags)
	assert.Equal(t, catcommon.StatusDraft, got.Status)
	assert.Equal(t, rec.DefinitionHash, got.DefinitionHash)
	assert.True(t, got.IsValid)
	assert.Nil(t, got.PromotedAt)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "v_fraud_missing_view")
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPutDuplicateNameConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.Nil(t, s.Put(ctx, newRecord("v_fraud_txn_daily")))

	// Same name, different record identity.
	dup := newRecord("v_fraud_txn_daily")
	err := s.Put(ctx, dup)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, store.ErrDuplicateName))
}

func TestPutSameIdentityReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := newRecord("v_fraud_txn_daily")
	require.Nil(t, s.Put(ctx, rec))

	rec.Description = "updated"
	require.Nil(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "v_fraud_txn_daily")
	require.Nil(t, err)
	assert.Equal(t, "updated", got.Description)
}

func TestPutBackstopRejectsCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1 := newRecord("v_fraud_txn_daily")
	require.Nil(t, s.Put(ctx, v1))
	v2 := newRecord("v_fraud_txn_weekly", "v_fraud_txn_daily")
	require.Nil(t, s.Put(ctx, v2))

	// Rewire v1 to depend on v2, closing a cycle.
	v1.DependsOnViews = []string{"v_fraud_txn_weekly"}
	err := s.Put(ctx, v1)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, store.ErrCycleDetected))
}

func TestPutBackstopRejectsExcessDepth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prev := ""
	for i, name := range []string{
		"v_fraud_layer_one", "v_fraud_layer_two", "v_fraud_layer_three", "v_fraud_layer_four",
	} {
		var deps []string
		if i > 0 {
			deps = []string{prev}
		}
		require.Nil(t, s.Put(ctx, newRecord(name, deps...)))
		prev = name
	}

	// Depth 5 exceeds the configured maximum of 4.
	err := s.Put(ctx, newRecord("v_fraud_layer_five", prev))
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, store.ErrDepthExceeded))
}

func TestUpdateAppliesMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.Nil(t, s.Put(ctx, newRecord("v_fraud_txn_daily")))

	updated, err := s.Update(ctx, "v_fraud_txn_daily", func(r *store.ViewRecord) apperrors.Error {
		r.UsageCount++
		now := time.Now().UTC()
		r.LastUsed = &now
		return nil
	})
	require.Nil(t, err)
	assert.Equal(t, int64(1), updated.UsageCount)
	assert.NotNil(t, updated.LastUsed)

	got, err := s.Get(ctx, "v_fraud_txn_daily")
	require.Nil(t, err)
	assert.Equal(t, int64(1), got.UsageCount)
}

func TestUpdateRejectsUsageDecrease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := newRecord("v_fraud_txn_daily")
	rec.UsageCount = 5
	require.Nil(t, s.Put(ctx, rec))

	_, err := s.Update(ctx, "v_fraud_txn_daily", func(r *store.ViewRecord) apperrors.Error {
		r.UsageCount = 2
		return nil
	})
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, store.ErrUsageCountDecreased))

	got, gerr := s.Get(ctx, "v_fraud_txn_daily")
	require.Nil(t, gerr)
	assert.Equal(t, int64(5), got.UsageCount)
}

func TestUpdateRejectsRename(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.Nil(t, s.Put(ctx, newRecord("v_fraud_txn_daily")))

	_, err := s.Update(ctx, "v_fraud_txn_daily", func(r *store.ViewRecord) apperrors.Error {
		r.Name = "v_fraud_txn_renamed"
		return nil
	})
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, store.ErrNameChanged))
}

func TestUpdateCallbackErrorAborts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.Nil(t, s.Put(ctx, newRecord("v_fraud_txn_daily")))

	boom := store.ErrStore.New("callback failure")
	_, err := s.Update(ctx, "v_fraud_txn_daily", func(r *store.ViewRecord) apperrors.Error {
		r.UsageCount = 99
		return boom
	})
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, boom))

	got, gerr := s.Get(ctx, "v_fraud_txn_daily")
	require.Nil(t, gerr)
	assert.Equal(t, int64(0), got.UsageCount)
}

func TestUpdateManyAtomicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.Nil(t, s.Put(ctx, newRecord("v_fraud_txn_daily")))
	require.Nil(t, s.Put(ctx, newRecord("v_fraud_txn_weekly")))

	// Second record fails; the first must not be left modified.
	err := s.UpdateMany(ctx, []string{"v_fraud_txn_daily", "v_fraud_txn_missing"}, func(r *store.ViewRecord) apperrors.Error {
		r.Status = catcommon.StatusStale
		return nil
	})
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	got, gerr := s.Get(ctx, "v_fraud_txn_daily")
	require.Nil(t, gerr)
	assert.Equal(t, catcommon.StatusDraft, got.Status)
}

func TestUpdateManyAppliesAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	names := []string{"v_fraud_txn_daily", "v_fraud_txn_weekly"}
	for _, n := range names {
		require.Nil(t, s.Put(ctx, newRecord(n)))
	}

	require.Nil(t, s.UpdateMany(ctx, names, func(r *store.ViewRecord) apperrors.Error {
		r.Status = catcommon.StatusStale
		r.PriorStatus = catcommon.StatusDraft
		return nil
	}))

	for _, n := range names {
		got, err := s.Get(ctx, n)
		require.Nil(t, err)
		assert.Equal(t, catcommon.StatusStale, got.Status)
		assert.Equal(t, catcommon.StatusDraft, got.PriorStatus)
	}
}

func TestScanFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fraud := newRecord("v_fraud_txn_daily")
	fraud.Status = catcommon.StatusPromoted
	require.Nil(t, s.Put(ctx, fraud))

	risk := newRecord("v_risk_exposure_daily")
	risk.Domain = catcommon.DomainRisk
	risk.Layer = catcommon.LayerResearch
	require.Nil(t, s.Put(ctx, risk))

	all, err := s.Scan(ctx, store.Filter{})
	require.Nil(t, err)
	assert.Len(t, all, 2)

	byDomain, err := s.Scan(ctx, store.Filter{Domain: store.FilterDomain("risk")})
	require.Nil(t, err)
	require.Len(t, byDomain, 1)
	assert.Equal(t, "v_risk_exposure_daily", byDomain[0].Name)

	byLayer, err := s.Scan(ctx, store.Filter{Layer: store.FilterLayer(2)})
	require.Nil(t, err)
	require.Len(t, byLayer, 1)
	assert.Equal(t, "v_risk_exposure_daily", byLayer[0].Name)

	byStatus, err := s.Scan(ctx, store.Filter{StatusIn: []string{"PROMOTED", "MATERIALIZED"}})
	require.Nil(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "v_fraud_txn_daily", byStatus[0].Name)
}

func TestScanOrderingStable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"v_risk_exposure_daily", "v_fraud_txn_daily", "v_merchant_volume_daily"} {
		rec := newRecord(n)
		rec.Domain = catcommon.ViewNameDomain(n)
		require.Nil(t, s.Put(ctx, rec))
	}

	first, err := s.Scan(ctx, store.Filter{})
	require.Nil(t, err)
	second, err := s.Scan(ctx, store.Filter{})
	require.Nil(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Name, second[i].Name)
	}
}

func TestCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	live := newRecord("v_fraud_txn_daily")
	require.Nil(t, s.Put(ctx, live))

	archived := newRecord("v_fraud_txn_weekly")
	archived.Status = catcommon.StatusArchived
	require.Nil(t, s.Put(ctx, archived))

	total, err := s.Count(ctx, false)
	require.Nil(t, err)
	assert.Equal(t, 2, total)

	active, err := s.Count(ctx, true)
	require.Nil(t, err)
	assert.Equal(t, 1, active)
}

func TestRollingQueryTime(t *testing.T) {
	rec := newRecord("v_fraud_txn_daily")
	rec.RecordQueryTime(100)
	rec.RecordQueryTime(200)

	assert.Equal(t, int64(2), rec.QuerySamples)
	assert.InDelta(t, 150.0, rec.AvgQueryTimeMS, 0.001)
}
