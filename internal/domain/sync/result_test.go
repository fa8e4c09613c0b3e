package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthsource/backend/internal/domain/integration"
)

func TestSyncResult_FoldEntity(t *testing.T) {
	r := NewSyncResult()

	r.FoldEntity(&integration.EntitySyncResult{
		EntityType: integration.EntityProducts,
		Processed:  5,
		Created:    2,
		Updated:    3,
	})
	r.FoldEntity(&integration.EntitySyncResult{
		EntityType: integration.EntityOrders,
		Processed:  10,
		Updated:    8,
		Skipped:    1,
		Failed:     1,
	})

	assert.Equal(t, 15, r.Summary.TotalProcessed)
	assert.Equal(t, 2, r.Summary.Created)
	assert.Equal(t, 11, r.Summary.Updated)
	assert.Equal(t, 1, r.Summary.Skipped)
	assert.Equal(t, 1, r.Summary.Failed)
	assert.Len(t, r.EntityResults, 2)

	r.FoldEntity(nil)
	assert.Len(t, r.EntityResults, 2)
}

func TestSyncResult_DeriveStatus(t *testing.T) {
	t.Run("no errors means completed", func(t *testing.T) {
		r := NewSyncResult()
		r.FoldEntity(&integration.EntitySyncResult{EntityType: integration.EntityProducts, Processed: 5})
		assert.Equal(t, JobStatusCompleted, r.DeriveStatus())
	})

	t.Run("mixed outcome means completed with errors", func(t *testing.T) {
		// One entity succeeds with five records, the next one blows up.
		// The failing entity must not appear in the result map, and its
		// records must not count toward the summary.
		r := NewSyncResult()
		r.FoldEntity(&integration.EntitySyncResult{EntityType: integration.EntityProducts, Processed: 5})
		r.AddError(integration.EntityInventory, errors.New("upstream 503"))

		assert.Equal(t, JobStatusCompletedWithErrors, r.DeriveStatus())
		assert.Equal(t, 5, r.Summary.TotalProcessed)
		assert.NotContains(t, r.EntityResults, integration.EntityInventory)
		require.Len(t, r.Errors, 1)
		assert.Equal(t, integration.EntityInventory, r.Errors[0].EntityType)
	})

	t.Run("only errors means failed", func(t *testing.T) {
		r := NewSyncResult()
		r.AddError(integration.EntityProducts, errors.New("auth expired"))
		assert.Equal(t, JobStatusFailed, r.DeriveStatus())
	})
}

func TestSyncResult_Finalize(t *testing.T) {
	t.Run("clean run is a success", func(t *testing.T) {
		r := NewSyncResult()
		r.FoldEntity(&integration.EntitySyncResult{EntityType: integration.EntityProducts, Processed: 3})
		r.Finalize(2 * time.Second)

		assert.True(t, r.Success)
		assert.Equal(t, 2*time.Second, r.Duration)
	})

	t.Run("partial run is not a success", func(t *testing.T) {
		r := NewSyncResult()
		r.FoldEntity(&integration.EntitySyncResult{EntityType: integration.EntityProducts, Processed: 5})
		r.AddError(integration.EntityInventory, errors.New("boom"))
		r.Finalize(time.Second)

		assert.False(t, r.Success)
	})
}
