package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeReconciliationScenario(t *testing.T) {
	source := []Document{
		{MessageID: "m1", GuildID: "g1", Content: "hi"},
		{MessageID: "m2", GuildID: "g1", Content: "there"},
		{MessageID: "m3", GuildID: "g1", Content: "yo"},
	}
	indexed := []string{"m2", "m4"}

	plan := ComputeReconciliation(source, indexed)

	require := assert.New(t)
	require.Len(plan.Upserts, 2)
	require.Equal("m1", plan.Upserts[0].MessageID)
	require.Equal("m3", plan.Upserts[1].MessageID)
	require.Equal([]string{"m4"}, plan.DeleteIDs)
}

func TestComputeReconciliationEmptyDiff(t *testing.T) {
	source := []Document{{MessageID: "m1", GuildID: "g1"}}
	indexed := []string{"m1"}

	plan := ComputeReconciliation(source, indexed)
	assert.Empty(t, plan.Upserts)
	assert.Empty(t, plan.DeleteIDs)
}

func TestComputeReconciliationSortsDeterministically(t *testing.T) {
	source := []Document{
		{MessageID: "zeta", GuildID: "g1"},
		{MessageID: "alpha", GuildID: "g1"},
	}
	plan := ComputeReconciliation(source, nil)
	assert.Equal(t, []string{"alpha", "zeta"}, []string{plan.Upserts[0].MessageID, plan.Upserts[1].MessageID})
}
