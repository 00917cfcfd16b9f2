// Package registry provides the append-ordered deposit record store for the
// externally polled workflow leg.
package registry

import (
	"context"
	"errors"

	"github.com/vaultbridge/txflow/pkg/models"
)

var (
	ErrDepositNotFound = errors.New("deposit record not found")

	// ErrStatusRegression rejects transitions that would move a record
	// backwards in its monotonic lifecycle.
	ErrStatusRegression = errors.New("deposit status transition not allowed")
)

// DepositStore keeps session-lifetime deposit history. Records are appended
// when the external operation is submitted and never deleted; only the status
// poller updates their status.
type DepositStore interface {
	Append(ctx context.Context, record *models.DepositRecord) error
	UpdateStatus(ctx context.Context, id string, status models.DepositStatus) (*models.DepositRecord, error)
	List(ctx context.Context) ([]*models.DepositRecord, error)
	ByID(ctx context.Context, id string) (*models.DepositRecord, error)
	Pending(ctx context.Context) ([]*models.DepositRecord, error)
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
