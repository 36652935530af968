package domain

import "context"

// GenerationRepository persists generations and their terminal outcome.
type GenerationRepository interface {
	Create(ctx context.Context, gen *Generation) error
	UpdateProgress(ctx context.Context, id string, attempts int) error
	Complete(ctx context.Context, id string, status GenerationStatus, outputs []OutputRecord, errMsg string) error
	GetByID(ctx context.Context, id string) (*Generation, error)
	// ListPolling returns up to limit generations still waiting on the
	// backend, newest first.
	ListPolling(ctx context.Context, limit int) ([]*Generation, error)
}
