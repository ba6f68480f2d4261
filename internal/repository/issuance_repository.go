package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/funding-auth/internal/domain"
)

// IssuanceRepository stores the token issuance audit trail.
type IssuanceRepository interface {
	Create(ctx context.Context, record *domain.IssuanceRecord) error
	ListByAccount(ctx context.Context, account string, limit int) ([]domain.IssuanceRecord, error)
}

type issuanceRepository struct {
	pool *pgxpool.Pool
}

// NewIssuanceRepository builds repository.
func NewIssuanceRepository(pool *pgxpool.Pool) IssuanceRepository {
	return &issuanceRepository{pool: pool}
}

func (r *issuanceRepository) Create(ctx context.Context, record *domain.IssuanceRecord) error {
	const query = `
        INSERT INTO token_issuance_audit (token_class, token_kind, account, token_fingerprint, bound, issued_at, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id::text, created_at`
	return r.pool.QueryRow(ctx, query,
		string(record.Class),
		string(record.Kind),
		record.Account,
		record.TokenFingerprint,
		record.Bound,
		record.IssuedAt,
		record.ExpiresAt,
	).Scan(&record.ID, &record.CreatedAt)
}

func (r *issuanceRepository) ListByAccount(ctx context.Context, account string, limit int) ([]domain.IssuanceRecord, error) {
	const query = `
        SELECT id::text, token_class, token_kind, account, token_fingerprint, bound, issued_at, expires_at, created_at
        FROM token_issuance_audit WHERE account=$1
        ORDER BY issued_at DESC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.IssuanceRecord
	for rows.Next() {
		var (
			record domain.IssuanceRecord
			class  string
			kind   string
		)
		if err := rows.Scan(
			&record.ID,
			&class,
			&kind,
			&record.Account,
			&record.TokenFingerprint,
			&record.Bound,
			&record.IssuedAt,
			&record.ExpiresAt,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		record.Class = domain.TokenClass(class)
		record.Kind = domain.TokenKind(kind)
		result = append(result, record)
	}
	return result, rows.Err()
}
