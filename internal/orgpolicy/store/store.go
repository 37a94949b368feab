// Package store reads organization configuration rows. The table is owned
// by the admin tooling; this service only reads it.
package store

import (
	"context"

	"eligibility/internal/orgpolicy/models"
)

// ConfigurationStore is the read-only access to organization configuration.
type ConfigurationStore interface {
	Get(ctx context.Context, organizationID int64) (*models.Configuration, error)
}
