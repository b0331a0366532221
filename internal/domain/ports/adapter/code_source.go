package adapter

import (
	"context"

	"license-activation/internal/domain/model"
)

// CodeSource fetches the externally published list of valid codes.
type CodeSource interface {
	Fetch(ctx context.Context) (*model.CodePool, error)
}
