package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"orbitstudio/internal/domain"
	"orbitstudio/internal/infra"
	"orbitstudio/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	db infra.SQLExecutor
}

// NewGenerationRepository creates a generation repository backed by
// PostgreSQL. db is normally an *infra.SQLRunner wrapping the pool.
func NewGenerationRepository(db infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{db: db}
}

// EnsureSchema creates the generations table when it is missing.
func (r *GenerationRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, sqlinline.QEnsureGenerations); err != nil {
		return fmt.Errorf("ensure generations schema: %w", err)
	}
	return nil
}

// Create inserts a new generation in the polling state.
func (r *GenerationRepositoryPG) Create(ctx context.Context, gen *domain.Generation) error {
	if gen.Status == "" {
		gen.Status = domain.GenerationStatusPolling
	}
	return r.db.QueryRow(ctx, sqlinline.QInsertGeneration,
		gen.ID,
		gen.SurfaceID,
		gen.UserID,
		string(gen.Operation),
		gen.Prompt,
		gen.AspectRatio,
		gen.Resolution,
		gen.SampleCount,
		string(gen.Status),
	).Scan(&gen.CreatedAt, &gen.UpdatedAt)
}

// UpdateProgress records the number of status queries made so far.
func (r *GenerationRepositoryPG) UpdateProgress(ctx context.Context, id string, attempts int) error {
	_, err := r.db.Exec(ctx, sqlinline.QUpdateGenerationProgress, id, attempts)
	return err
}

// Complete stores the terminal outcome. Generations that already left the
// polling state are left untouched.
func (r *GenerationRepositoryPG) Complete(ctx context.Context, id string, status domain.GenerationStatus, outputs []domain.OutputRecord, errMsg string) error {
	var outputsJSON []byte
	if len(outputs) > 0 {
		raw, err := json.Marshal(outputs)
		if err != nil {
			return fmt.Errorf("marshal outputs: %w", err)
		}
		outputsJSON = raw
	}
	_, err := r.db.Exec(ctx, sqlinline.QCompleteGeneration, id, string(status), outputsJSON, errMsg)
	return err
}

// GetByID fetches a generation by its identifier.
func (r *GenerationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Generation, error) {
	gen, err := scanGeneration(r.db.QueryRow(ctx, sqlinline.QGetGeneration, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return gen, nil
}

// ListPolling returns generations that have not reached a terminal state.
func (r *GenerationRepositoryPG) ListPolling(ctx context.Context, limit int) ([]*domain.Generation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, sqlinline.QListPollingGenerations, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, gen)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*domain.Generation, error) {
	var (
		gen         domain.Generation
		operation   string
		status      string
		outputsJSON []byte
	)
	err := row.Scan(
		&gen.ID,
		&gen.SurfaceID,
		&gen.UserID,
		&operation,
		&gen.Prompt,
		&gen.AspectRatio,
		&gen.Resolution,
		&gen.SampleCount,
		&status,
		&gen.Attempts,
		&outputsJSON,
		&gen.ErrorMessage,
		&gen.CreatedAt,
		&gen.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	gen.Operation = domain.OperationHandle(operation)
	gen.Status = domain.GenerationStatus(status)
	if len(outputsJSON) > 0 {
		if err := json.Unmarshal(outputsJSON, &gen.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs: %w", err)
		}
	}
	return &gen, nil
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)
