package duplicates_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
	"github.com/warp/enrollment-engine/domain/store"
	"github.com/warp/enrollment-engine/duplicates"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recordingInvalidator struct {
	calls [][]string
	err   error
}

func (r *recordingInvalidator) InvalidateBatches(_ context.Context, ids []string) error {
	r.calls = append(r.calls, ids)
	return r.err
}

func newResolver(t *testing.T, students ...domain.Student) (*duplicates.Resolver, *store.Memory, *recordingInvalidator) {
	t.Helper()
	mem := store.NewMemory()
	for _, s := range students {
		require.NoError(t, mem.SaveStudent(context.Background(), s))
	}
	inv := &recordingInvalidator{}
	return duplicates.NewResolver(mem, inv, zap.NewNop()), mem, inv
}

func exists(t *testing.T, mem *store.Memory, id string) bool {
	t.Helper()
	s, err := mem.GetStudent(context.Background(), id)
	require.NoError(t, err)
	return s != nil
}

// =============================================================================
// RESOLVE
// =============================================================================

func TestResolve_DeletesAndRevalidatesBatches(t *testing.T) {
	r, mem, inv := newResolver(t,
		student("keep", withBatch("b-1")),
		student("dup1", withBatch("b-2")),
		student("dup2"),
	)

	res, err := r.Resolve(context.Background(), duplicates.Resolution{
		KeepID: "keep", DeleteIDs: []string{"dup1", "dup2"},
	})

	require.NoError(t, err)
	assert.True(t, exists(t, mem, "keep"))
	assert.False(t, exists(t, mem, "dup1"))
	assert.False(t, exists(t, mem, "dup2"))
	assert.Equal(t, []string{"dup1", "dup2"}, res.DeletedIDs)
	assert.Empty(t, res.MergedFields)
	require.Len(t, inv.calls, 1)
	assert.Equal(t, []string{"b-1", "b-2"}, inv.calls[0])
}

func TestResolve_MergeFillsGaps(t *testing.T) {
	r, mem, _ := newResolver(t,
		student("keep", withEmail("keep@x.com")),
		student("dup", withEmail("dup@x.com"), withPhone("6125550100"), withBatch("b-9")),
	)

	res, err := r.Resolve(context.Background(), duplicates.Resolution{
		KeepID: "keep", DeleteIDs: []string{"dup"}, MergeData: true,
	})
	require.NoError(t, err)

	kept, err := mem.GetStudent(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, "keep@x.com", *kept.Email)
	assert.Equal(t, "6125550100", *kept.Phone)
	assert.Equal(t, "b-9", *kept.BatchID)
	assert.ElementsMatch(t, []string{"phone", "batchId"}, res.MergedFields)
}

func TestResolve_ParameterChecks(t *testing.T) {
	r, _, inv := newResolver(t, student("a"), student("b"))
	ctx := context.Background()

	_, err := r.Resolve(ctx, duplicates.Resolution{KeepID: "a"})
	assert.Equal(t, domain.CodeRequiredParameter, domain.CodeOf(err))

	_, err = r.Resolve(ctx, duplicates.Resolution{KeepID: "a", DeleteIDs: []string{"b", "a"}})
	assert.Equal(t, domain.CodeInvalidParameter, domain.CodeOf(err))

	assert.Empty(t, inv.calls)
}

func TestResolve_MissingRecordsRollBack(t *testing.T) {
	r, mem, inv := newResolver(t, student("keep"), student("dup"))
	ctx := context.Background()

	_, err := r.Resolve(ctx, duplicates.Resolution{KeepID: "ghost", DeleteIDs: []string{"dup"}})
	assert.True(t, domain.IsNotFound(err))

	_, err = r.Resolve(ctx, duplicates.Resolution{KeepID: "keep", DeleteIDs: []string{"dup", "gone"}})
	require.True(t, domain.IsNotFound(err))
	assert.Equal(t, []string{"gone"}, domain.DetailsOf(err).(domain.NotFoundDetails).IDs)

	assert.True(t, exists(t, mem, "dup"), "nothing deleted when any id is missing")
	assert.Empty(t, inv.calls)
}

func TestResolve_CacheFailureDoesNotFail(t *testing.T) {
	r, mem, inv := newResolver(t, student("keep", withBatch("b-1")), student("dup"))
	inv.err = errors.New("redis down")

	_, err := r.Resolve(context.Background(), duplicates.Resolution{KeepID: "keep", DeleteIDs: []string{"dup"}})

	assert.NoError(t, err)
	assert.False(t, exists(t, mem, "dup"))
}

// =============================================================================
// BATCH RESOLVE
// =============================================================================

func TestBatchResolve_IsolatesFailures(t *testing.T) {
	// GIVEN: Three groups, the second's keep record does not exist
	// WHEN: Batch resolving
	// THEN: Groups one and three resolve, group two is reported
	r, mem, _ := newResolver(t,
		student("k1"), student("d1"),
		student("d2"),
		student("k3"), student("d3"),
	)

	result := r.BatchResolve(context.Background(), []duplicates.Resolution{
		{KeepID: "k1", DeleteIDs: []string{"d1"}},
		{KeepID: "k2-missing", DeleteIDs: []string{"d2"}},
		{KeepID: "k3", DeleteIDs: []string{"d3"}},
	})

	assert.Equal(t, 2, result.ResolvedCount)
	require.Len(t, result.FailedGroups, 1)
	assert.Equal(t, "k2-missing", result.FailedGroups[0].KeepID)
	assert.Contains(t, result.FailedGroups[0].Error, "NOT_FOUND")

	assert.False(t, exists(t, mem, "d1"))
	assert.True(t, exists(t, mem, "d2"), "failed group left untouched")
	assert.False(t, exists(t, mem, "d3"))
}

func TestBatchResolve_Empty(t *testing.T) {
	r, _, _ := newResolver(t)

	result := r.BatchResolve(context.Background(), nil)

	assert.Zero(t, result.ResolvedCount)
	assert.NotNil(t, result.FailedGroups)
	assert.Empty(t, result.FailedGroups)
}
