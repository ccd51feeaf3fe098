package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/internal/domain/scoring"
	"github.com/forgemint/forgemint/pkg/metrics"
)

const contributionsSchema = `
CREATE TABLE IF NOT EXISTS contributions (
	id               TEXT PRIMARY KEY,
	external_id      TEXT NOT NULL UNIQUE,
	type             TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	repo_id          TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	url              TEXT NOT NULL DEFAULT '',
	stats            JSONB NOT NULL DEFAULT '{}',
	metadata         JSONB NOT NULL DEFAULT '{}',
	score            INT,
	breakdown        JSONB,
	eligibility      TEXT NOT NULL DEFAULT 'unscored',
	status           TEXT NOT NULL DEFAULT 'pending',
	tx_hash          TEXT NOT NULL DEFAULT '',
	token_id         TEXT NOT NULL DEFAULT '',
	metadata_uri     TEXT NOT NULL DEFAULT '',
	submission_phase TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS contributions_unscored_idx
	ON contributions (created_at) WHERE status = 'pending' AND score IS NULL;
`

const contributionColumns = `id, external_id, type, user_id, repo_id, title, description, url,
	stats, metadata, score, breakdown, eligibility, status, tx_hash, token_id,
	metadata_uri, submission_phase, created_at, updated_at`

// PGStore implements Store on PostgreSQL. The unique external_id constraint
// enforces dedup and the status predicate in UPDATE statements enforces the
// transition guard, so the guarantees hold across multiple processes.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to databaseURL and bootstraps the schema.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect contribution store: %w", err)
	}
	if _, err := pool.Exec(ctx, contributionsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap contribution schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() { s.pool.Close() }

func (s *PGStore) CreateIfAbsent(ctx context.Context, externalID string, attrs CreateAttrs) (model.Contribution, bool, error) {
	statsJSON, err := json.Marshal(attrs.Stats)
	if err != nil {
		return model.Contribution{}, false, fmt.Errorf("encode stats: %w", err)
	}
	metaJSON, err := json.Marshal(attrs.Metadata)
	if err != nil {
		return model.Contribution{}, false, fmt.Errorf("encode metadata: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO contributions (id, external_id, type, user_id, repo_id, title, description, url, stats, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING `+contributionColumns,
		uuid.NewString(), externalID, string(attrs.Type), attrs.UserID, attrs.RepoID,
		attrs.Title, attrs.Description, attrs.URL, statsJSON, metaJSON,
	)

	c, err := scanContribution(row)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Contribution{}, false, fmt.Errorf("create contribution: %w", err)
	}

	// Lost the insert race or the row already existed; either way return it.
	existing, err := s.GetByExternalID(ctx, externalID)
	if err != nil {
		return model.Contribution{}, false, err
	}
	return existing, false, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (model.Contribution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE id = $1`, id)
	c, err := scanContribution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Contribution{}, ErrNotFound
	}
	if err != nil {
		return model.Contribution{}, fmt.Errorf("get contribution: %w", err)
	}
	return c, nil
}

func (s *PGStore) GetByExternalID(ctx context.Context, externalID string) (model.Contribution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE external_id = $1`, externalID)
	c, err := scanContribution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Contribution{}, ErrNotFound
	}
	if err != nil {
		return model.Contribution{}, fmt.Errorf("get contribution by external id: %w", err)
	}
	return c, nil
}

func (s *PGStore) Transition(ctx context.Context, id string, fromStatuses []model.Status, toStatus model.Status, patch Patch) (model.Contribution, error) {
	query, args, err := transitionQuery(id, fromStatuses, toStatus, patch)
	if err != nil {
		return model.Contribution{}, err
	}

	row := s.pool.QueryRow(ctx, query, args...)
	c, err := scanContribution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing row from a guard rejection.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return model.Contribution{}, getErr
		}
		metrics.RecordStoreConflict()
		return model.Contribution{}, ErrConflict
	}
	if err != nil {
		return model.Contribution{}, fmt.Errorf("transition contribution: %w", err)
	}
	return c, nil
}

func (s *PGStore) RecordScore(ctx context.Context, id string, score int, breakdown scoring.Breakdown, eligibility model.Eligibility) error {
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE contributions
		SET score = $2, breakdown = $3, eligibility = $4, updated_at = now()
		WHERE id = $1 AND status = ANY($5)`,
		id, score, breakdownJSON, string(eligibility),
		statusStrings([]model.Status{model.StatusPending, model.StatusFailed}),
	)
	if err != nil {
		return fmt.Errorf("record score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		metrics.RecordStoreConflict()
		return ErrConflict
	}
	return nil
}

func (s *PGStore) RecordPhase(ctx context.Context, id, phase string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE contributions SET submission_phase = $2, updated_at = now() WHERE id = $1`,
		id, phase,
	)
	if err != nil {
		return fmt.Errorf("record phase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) RecordMintSuccess(ctx context.Context, id, txHash, tokenID, metadataURI string) error {
	_, err := s.Transition(ctx, id,
		[]model.Status{model.StatusMinting},
		model.StatusMinted,
		Patch{TxHash: &txHash, TokenID: &tokenID, MetadataURI: &metadataURI},
	)
	return err
}

func (s *PGStore) RecordMintFailure(ctx context.Context, id string) error {
	_, err := s.Transition(ctx, id,
		[]model.Status{model.StatusMinting},
		model.StatusFailed,
		Patch{},
	)
	return err
}

func (s *PGStore) ListUnscored(ctx context.Context, limit int) ([]model.Contribution, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+contributionColumns+`
		FROM contributions
		WHERE status = 'pending' AND score IS NULL
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unscored: %w", err)
	}
	defer rows.Close()

	var out []model.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unscored contribution: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) Count(ctx context.Context) int {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM contributions`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// transitionQuery assembles the guarded UPDATE for a status transition:
// only named prior statuses match, and minted never does.
func transitionQuery(id string, fromStatuses []model.Status, toStatus model.Status, patch Patch) (string, []any, error) {
	sets := []string{"status = $2", "updated_at = now()"}
	args := []any{id, string(toStatus)}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Score != nil {
		addSet("score", *patch.Score)
	}
	if patch.Breakdown != nil {
		breakdownJSON, err := json.Marshal(patch.Breakdown)
		if err != nil {
			return "", nil, fmt.Errorf("encode breakdown: %w", err)
		}
		addSet("breakdown", breakdownJSON)
	}
	if patch.Eligibility != nil {
		addSet("eligibility", string(*patch.Eligibility))
	}
	if patch.TxHash != nil {
		addSet("tx_hash", *patch.TxHash)
	}
	if patch.TokenID != nil {
		addSet("token_id", *patch.TokenID)
	}
	if patch.MetadataURI != nil {
		addSet("metadata_uri", *patch.MetadataURI)
	}
	if patch.SubmissionPhase != nil {
		addSet("submission_phase", *patch.SubmissionPhase)
	}

	args = append(args, statusStrings(fromStatuses))
	query := fmt.Sprintf(
		`UPDATE contributions SET %s WHERE id = $1 AND status = ANY($%d) AND status <> 'minted' RETURNING %s`,
		strings.Join(sets, ", "), len(args), contributionColumns,
	)
	return query, args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContribution(row rowScanner) (model.Contribution, error) {
	var (
		c             model.Contribution
		statsJSON     []byte
		metaJSON      []byte
		breakdownJSON []byte
		score         *int
	)

	err := row.Scan(
		&c.ID, &c.ExternalID, &c.Type, &c.UserID, &c.RepoID,
		&c.Title, &c.Description, &c.URL,
		&statsJSON, &metaJSON, &score, &breakdownJSON,
		&c.Eligibility, &c.Status, &c.TxHash, &c.TokenID,
		&c.MetadataURI, &c.SubmissionPhase, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return model.Contribution{}, err
	}

	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &c.Stats); err != nil {
			return model.Contribution{}, fmt.Errorf("decode stats: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return model.Contribution{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(breakdownJSON) > 0 {
		var b scoring.Breakdown
		if err := json.Unmarshal(breakdownJSON, &b); err != nil {
			return model.Contribution{}, fmt.Errorf("decode breakdown: %w", err)
		}
		c.Breakdown = &b
	}
	c.Score = score
	return c, nil
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}
