package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func rec(name string, deps ...string) *ViewRecord {
	return &ViewRecord{Name: name, DependsOnViews: deps}
}

func snapshot(records ...*ViewRecord) map[string]*ViewRecord {
	out := make(map[string]*ViewRecord, len(records))
	for _, r := range records {
		out[r.Name] = r
	}
	return out
}

func TestCheckInvariantsAcceptsDAG(t *testing.T) {
	snap := snapshot(
		rec("v_fraud_base_daily"),
		rec("v_fraud_mid_daily", "v_fraud_base_daily"),
	)
	candidate := rec("v_fraud_top_daily", "v_fraud_mid_daily")

	assert.NoError(t, CheckInvariants(snap, candidate, 4))
}

func TestCheckInvariantsSelfDependency(t *testing.T) {
	err := CheckInvariants(snapshot(), rec("v_fraud_self_daily", "v_fraud_self_daily"), 4)
	assert.True(t, errors.Is(err, ErrCycleDetected))
}

func TestCheckInvariantsTransitiveCycle(t *testing.T) {
	snap := snapshot(
		rec("v_fraud_a_daily", "v_fraud_b_daily"),
		rec("v_fraud_b_daily", "v_fraud_c_daily"),
	)
	// c -> a closes a three-view cycle.
	err := CheckInvariants(snap, rec("v_fraud_c_daily", "v_fraud_a_daily"), 4)
	assert.True(t, errors.Is(err, ErrCycleDetected))
}

func TestCheckInvariantsDepthLimit(t *testing.T) {
	snap := snapshot(
		rec("v_fraud_one_daily"),
		rec("v_fraud_two_daily", "v_fraud_one_daily"),
		rec("v_fraud_three_daily", "v_fraud_two_daily"),
	)

	// Depth 4 is allowed, depth 5 is not when the maximum is 4.
	assert.NoError(t, CheckInvariants(snap, rec("v_fraud_four_daily", "v_fraud_three_daily"), 4))

	snap["v_fraud_four_daily"] = rec("v_fraud_four_daily", "v_fraud_three_daily")
	err := CheckInvariants(snap, rec("v_fraud_five_daily", "v_fraud_four_daily"), 4)
	assert.True(t, errors.Is(err, ErrDepthExceeded))
}

func TestCheckInvariantsDiamondDependency(t *testing.T) {
	// A diamond is a legal DAG: depth follows the longest arm.
	snap := snapshot(
		rec("v_fraud_root_daily"),
		rec("v_fraud_left_daily", "v_fraud_root_daily"),
		rec("v_fraud_right_daily", "v_fraud_root_daily"),
	)
	candidate := rec("v_fraud_join_daily", "v_fraud_left_daily", "v_fraud_right_daily")

	assert.NoError(t, CheckInvariants(snap, candidate, 4))
	assert.Error(t, CheckInvariants(snap, candidate, 2))
}

func TestCheckInvariantsUnknownDependencyIgnored(t *testing.T) {
	// Unknown names contribute no depth; existence is the lifecycle
	// engine's concern, not the backstop's.
	assert.NoError(t, CheckInvariants(snapshot(), rec("v_fraud_top_daily", "v_fraud_ghost_daily"), 4))
}

func TestMarshalStringsRoundtrip(t *testing.T) {
	out, err := MarshalStrings([]string{"transactions", "accounts"})
	assert.NoError(t, err)

	back, err := UnmarshalStrings(out)
	assert.NoError(t, err)
	assert.Equal(t, []string{"transactions", "accounts"}, back)

	empty, err := MarshalStrings(nil)
	assert.NoError(t, err)
	assert.Equal(t, "[]", empty)

	back, err = UnmarshalStrings("")
	assert.NoError(t, err)
	assert.Equal(t, []string{}, back)
}
