package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultbridge/txflow/pkg/models"
	"github.com/vaultbridge/txflow/pkg/registry"
	"github.com/vaultbridge/txflow/pkg/registry/memory"
)

func newRecord(t *testing.T, id string) *models.DepositRecord {
	t.Helper()

	amount, err := models.ParseAmount("0.5", 8)
	require.NoError(t, err)

	now := time.Now().UTC()

	return &models.DepositRecord{
		ID:              id,
		RequestedAmount: amount,
		SubmittedAt:     now,
		ExternalTxRef:   "0x" + id,
		Status:          models.DepositStatusPending,
		UpdatedAt:       now,
	}
}

func TestStore_AppendPreservesOrder(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()

	require.NoError(t, store.Append(t.Context(), newRecord(t, "first")))
	require.NoError(t, store.Append(t.Context(), newRecord(t, "second")))
	require.NoError(t, store.Append(t.Context(), newRecord(t, "third")))

	records, err := store.List(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "first", records[0].ID)
	assert.Equal(t, "second", records[1].ID)
	assert.Equal(t, "third", records[2].ID)
}

func TestStore_AppendRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()

	require.NoError(t, store.Append(t.Context(), newRecord(t, "dep-1")))
	assert.Error(t, store.Append(t.Context(), newRecord(t, "dep-1")))
}

func TestStore_UpdateStatusMonotonic(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	require.NoError(t, store.Append(t.Context(), newRecord(t, "dep-1")))

	updated, err := store.UpdateStatus(t.Context(), "dep-1", models.DepositStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusConfirmed, updated.Status)

	// Confirmed cannot move back to pending or sideways to failed.
	_, err = store.UpdateStatus(t.Context(), "dep-1", models.DepositStatusPending)
	assert.ErrorIs(t, err, registry.ErrStatusRegression)

	_, err = store.UpdateStatus(t.Context(), "dep-1", models.DepositStatusFailed)
	assert.ErrorIs(t, err, registry.ErrStatusRegression)

	updated, err = store.UpdateStatus(t.Context(), "dep-1", models.DepositStatusMinted)
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusMinted, updated.Status)
}

func TestStore_UpdateStatusUnknownID(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()

	_, err := store.UpdateStatus(t.Context(), "missing", models.DepositStatusConfirmed)
	assert.ErrorIs(t, err, registry.ErrDepositNotFound)
}

func TestStore_ByIDReturnsCopy(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	require.NoError(t, store.Append(t.Context(), newRecord(t, "dep-1")))

	record, err := store.ByID(t.Context(), "dep-1")
	require.NoError(t, err)

	record.Status = models.DepositStatusFailed

	stored, err := store.ByID(t.Context(), "dep-1")
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusPending, stored.Status)
}

func TestStore_ByIDUnknown(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()

	_, err := store.ByID(t.Context(), "missing")
	assert.ErrorIs(t, err, registry.ErrDepositNotFound)
}

func TestStore_PendingFiltersTerminalRecords(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()

	require.NoError(t, store.Append(t.Context(), newRecord(t, "dep-1")))
	require.NoError(t, store.Append(t.Context(), newRecord(t, "dep-2")))
	require.NoError(t, store.Append(t.Context(), newRecord(t, "dep-3")))

	_, err := store.UpdateStatus(t.Context(), "dep-2", models.DepositStatusConfirmed)
	require.NoError(t, err)

	_, err = store.UpdateStatus(t.Context(), "dep-3", models.DepositStatusFailed)
	require.NoError(t, err)

	pending, err := store.Pending(t.Context())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "dep-1", pending[0].ID)
}
