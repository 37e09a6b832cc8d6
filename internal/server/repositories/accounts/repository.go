// Package accounts records which client accounts may upload bulletins.
package accounts

import "context"

type Repository interface {
	// GrantUpload is idempotent.
	GrantUpload(ctx context.Context, accountID string) error
	CanUpload(ctx context.Context, accountID string) (bool, error)
}
