package codesource

import (
	"context"
	"fmt"
	"os"

	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/adapter"
)

var _ adapter.CodeSource = (*FileSource)(nil)

// FileSource reads a code list document from local disk. Used for seeding
// and offline runs.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

func (s *FileSource) Fetch(ctx context.Context) (*model.CodePool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("code file: %w", err)
	}
	return ParseDocument(b)
}
