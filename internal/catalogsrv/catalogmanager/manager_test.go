package catalogmanager

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/catalogsrv/config"
	"github.com/viewplan/viewplan/internal/catalogsrv/depgraph"
	"github.com/viewplan/viewplan/internal/catalogsrv/lifecycle"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/catalogsrv/store/sqlite"
	"github.com/viewplan/viewplan/internal/common/logtrace"
)

func init() {
	logtrace.InitTestLogger()
}

type fixedStats struct {
	fks []depgraph.FKRelationship
}

func (s *fixedStats) TableStats(_ context.Context, name string) (depgraph.TableStat, error) {
	return depgraph.TableStat{Name: name, RowCount: 1000, Domain: "transaction"}, nil
}

func (s *fixedStats) FKRelationships(_ context.Context) ([]depgraph.FKRelationship, error) {
	return s.fks, nil
}

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	s, err := sqlite.New(":memory:", cfg.Governance.MaxNestingDepth)
	require.Nil(t, err)

	stats := &fixedStats{fks: []depgraph.FKRelationship{
		{FromTable: "transactions", ToTable: "accounts", Selectivity: 1.0, JoinCost: 1.0},
		{FromTable: "transactions", ToTable: "merchants", Selectivity: 1.0, JoinCost: 1.0},
	}}
	m, err := New(s, cfg, stats, opts)
	require.Nil(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func sessionCtx(session, role string) context.Context {
	ctx := catcommon.WithSessionID(context.Background(), catcommon.SessionID(session))
	return catcommon.WithRole(ctx, catcommon.RoleName(role))
}

func registerReq(name string, tables []string, deps ...string) *RegisterRequest {
	return &RegisterRequest{
		Name:           name,
		Layer:          1,
		Domain:         string(catcommon.ViewNameDomain(name)),
		BaseTables:     tables,
		DependsOnViews: deps,
		Definition:     "SELECT 1 FROM " + name,
	}
}

func TestRegisterView(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	rec, err := m.RegisterView(ctx, registerReq("v_fraud_velocity_daily", []string{"transactions"}))
	require.Nil(t, err)

	assert.Equal(t, catcommon.StatusDraft, rec.Status)
	assert.Equal(t, catcommon.SessionID("s1"), rec.CreatedBySession)
	assert.Equal(t, catcommon.RoleName("analyst"), rec.CreatedByRole)
	assert.Equal(t, catcommon.FreshnessLive, rec.FreshnessType)
	assert.Equal(t, catcommon.HashDefinition(rec.Definition), rec.DefinitionHash)
}

func TestRegisterViewRequestValidation(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	tests := []struct {
		name string
		req  *RegisterRequest
	}{
		{"bad view name", registerReq("velocity", []string{"transactions"})},
		{"missing definition", &RegisterRequest{Name: "v_fraud_x_daily", Layer: 1, Domain: "fraud"}},
		{"bad layer", &RegisterRequest{Name: "v_fraud_x_daily", Layer: 9, Domain: "fraud", Definition: "SELECT 1"}},
		{"bad domain", &RegisterRequest{Name: "v_fraud_x_daily", Layer: 1, Domain: "sales", Definition: "SELECT 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.RegisterView(ctx, tt.req)
			require.NotNil(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
		})
	}
}

func TestRegisterViewDefinitionHook(t *testing.T) {
	reject := func(_ context.Context, definition string) error {
		return fmt.Errorf("disallowed construct in %q", definition)
	}
	m := newTestManager(t, Options{DefinitionValidator: reject})

	_, err := m.RegisterView(sessionCtx("s1", "analyst"), registerReq("v_fraud_velocity_daily", []string{"transactions"}))
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrDefinitionRejected))
}

func TestRegisterViewCycleScenario(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	_, err := m.RegisterView(ctx, registerReq("v_fraud_one_daily", []string{"transactions", "accounts"}))
	require.Nil(t, err)
	_, err = m.RegisterView(ctx, registerReq("v_fraud_two_daily", nil, "v_fraud_one_daily"))
	require.Nil(t, err)

	_, err = m.RegisterView(ctx, registerReq("v_fraud_one_daily", nil, "v_fraud_two_daily"))
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, depgraph.ErrCycleDetected))
}

func TestIncrementUsagePromotes(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	_, err := m.RegisterView(ctx, registerReq("v_fraud_velocity_daily", []string{"transactions"}))
	require.Nil(t, err)

	var rec *store.ViewRecord
	for i := 0; i < 3; i++ {
		rec, err = m.IncrementUsage(ctx, "v_fraud_velocity_daily")
		require.Nil(t, err)
	}
	assert.Equal(t, catcommon.StatusPromoted, rec.Status)
	assert.Equal(t, int64(3), rec.UsageCount)
}

func TestRecordQueryTime(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	_, err := m.RegisterView(ctx, registerReq("v_fraud_velocity_daily", []string{"transactions"}))
	require.Nil(t, err)

	require.Nil(t, m.RecordQueryTime(ctx, "v_fraud_velocity_daily", 100))
	require.Nil(t, m.RecordQueryTime(ctx, "v_fraud_velocity_daily", 200))

	rec, err := m.store.Get(ctx, "v_fraud_velocity_daily")
	require.Nil(t, err)
	assert.InDelta(t, 150, rec.AvgQueryTimeMS, 1e-9)
	assert.Equal(t, int64(2), rec.QuerySamples)
}

func TestPlanQueryUsesPromotedView(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	_, err := m.RegisterView(ctx, registerReq("v_fraud_txnacct_daily", []string{"transactions", "accounts"}))
	require.Nil(t, err)
	for i := 0; i < 3; i++ {
		_, err = m.IncrementUsage(ctx, "v_fraud_txnacct_daily")
		require.Nil(t, err)
	}

	plan, err := m.PlanQuery(ctx, []string{"transactions", "accounts"}, "analyst")
	require.Nil(t, err)
	assert.Equal(t, []string{"v_fraud_txnacct_daily"}, plan.ViewsUsed)
	assert.Empty(t, plan.BaseTablesUsed)
	assert.Equal(t, 2, plan.TablesAvoided)

	// Planning alone never moves usage counters.
	rec, gerr := m.store.Get(ctx, "v_fraud_txnacct_daily")
	require.Nil(t, gerr)
	assert.Equal(t, int64(3), rec.UsageCount)
}

func TestPlanQueryDraftViewIgnored(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	_, err := m.RegisterView(ctx, registerReq("v_fraud_txnacct_daily", []string{"transactions", "accounts"}))
	require.Nil(t, err)

	plan, err := m.PlanQuery(ctx, []string{"transactions", "accounts"}, "analyst")
	require.Nil(t, err)
	assert.Empty(t, plan.ViewsUsed)
	assert.Equal(t, []string{"accounts", "transactions"}, plan.BaseTablesUsed)
	assert.Zero(t, plan.TablesAvoided)
}

func TestPlanQueryRoleFilter(t *testing.T) {
	auth := func(role catcommon.RoleName, domain catcommon.Domain) bool {
		return role == "fraud-analyst" || domain != catcommon.DomainFraud
	}
	m := newTestManager(t, Options{Authorizer: auth})
	ctx := sessionCtx("s1", "fraud-analyst")

	_, err := m.RegisterView(ctx, registerReq("v_fraud_txnacct_daily", []string{"transactions", "accounts"}))
	require.Nil(t, err)
	for i := 0; i < 3; i++ {
		_, err = m.IncrementUsage(ctx, "v_fraud_txnacct_daily")
		require.Nil(t, err)
	}

	plan, err := m.PlanQuery(ctx, []string{"transactions", "accounts"}, "fraud-analyst")
	require.Nil(t, err)
	assert.Equal(t, []string{"v_fraud_txnacct_daily"}, plan.ViewsUsed)

	// A role without fraud access plans around the view.
	plan, err = m.PlanQuery(ctx, []string{"transactions", "accounts"}, "merchant-analyst")
	require.Nil(t, err)
	assert.Empty(t, plan.ViewsUsed)
	assert.Equal(t, []string{"accounts", "transactions"}, plan.BaseTablesUsed)
}

func TestNotifyTableChanged(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	_, err := m.RegisterView(ctx, registerReq("v_fraud_velocity_daily", []string{"transactions"}))
	require.Nil(t, err)

	require.Nil(t, m.NotifyTableChanged(ctx, "transactions"))

	rec, err := m.store.Get(ctx, "v_fraud_velocity_daily")
	require.Nil(t, err)
	assert.Equal(t, catcommon.StatusStale, rec.Status)
	assert.False(t, rec.IsValid)
}

func TestTransitionAndRevival(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	req := registerReq("v_fraud_velocity_daily", []string{"transactions"})
	_, err := m.RegisterView(ctx, req)
	require.Nil(t, err)

	rec, err := m.TransitionView(ctx, "v_fraud_velocity_daily", lifecycle.Event{Type: lifecycle.EventArchive})
	require.Nil(t, err)
	assert.Equal(t, catcommon.StatusArchived, rec.Status)

	// Re-registering the identical definition revives rather than
	// conflicting.
	revived, err := m.RegisterView(sessionCtx("s2", "analyst"), req)
	require.Nil(t, err)
	assert.Equal(t, catcommon.StatusDraft, revived.Status)
	assert.Nil(t, revived.ArchivedAt)
}

func TestGetLineage(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	_, err := m.RegisterView(ctx, registerReq("v_fraud_one_daily", []string{"transactions"}))
	require.Nil(t, err)
	_, err = m.RegisterView(ctx, registerReq("v_fraud_two_daily", []string{"accounts"}, "v_fraud_one_daily"))
	require.Nil(t, err)
	_, err = m.RegisterView(ctx, registerReq("v_fraud_three_daily", nil, "v_fraud_two_daily"))
	require.Nil(t, err)

	lin, err := m.GetLineage(ctx, "v_fraud_two_daily")
	require.Nil(t, err)
	assert.Equal(t, []string{"accounts"}, lin.BaseTables)
	assert.Equal(t, []string{"v_fraud_one_daily"}, lin.Upstream)
	assert.Equal(t, []string{"v_fraud_three_daily"}, lin.Downstream)
	assert.Equal(t, []string{"v_fraud_one_daily"}, lin.DirectParents)
	assert.Equal(t, []string{"v_fraud_three_daily"}, lin.DirectChildren)
	assert.Equal(t, 2, lin.Depth)
}

func TestStatistics(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := sessionCtx("s1", "analyst")

	_, err := m.RegisterView(ctx, registerReq("v_fraud_one_daily", []string{"transactions"}))
	require.Nil(t, err)
	_, err = m.RegisterView(ctx, registerReq("v_customer_profile_daily", []string{"accounts"}))
	require.Nil(t, err)

	for i := 0; i < 4; i++ {
		_, err = m.IncrementUsage(ctx, "v_fraud_one_daily")
		require.Nil(t, err)
	}
	_, err = m.TransitionView(ctx, "v_customer_profile_daily", lifecycle.Event{Type: lifecycle.EventArchive})
	require.Nil(t, err)

	stats, err := m.Statistics(ctx)
	require.Nil(t, err)
	assert.Equal(t, 2, stats.TotalViews)
	assert.Equal(t, 1, stats.ActiveViews)
	assert.Equal(t, 1, stats.ByStatus[catcommon.StatusPromoted])
	assert.Equal(t, 1, stats.ByStatus[catcommon.StatusArchived])
	assert.Equal(t, 2, stats.ByLayer[catcommon.LayerDiscovery])
	assert.Equal(t, 1, stats.ByDomain[catcommon.DomainFraud])
	assert.Equal(t, int64(4), stats.TotalUsage)
	assert.Equal(t, "v_fraud_one_daily", stats.MostUsed)
	assert.Equal(t, int64(4), stats.MostUsedCount)
}
