package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/ucprov/internal/db"
)

// PostgresRepository stores credentials in the platform_credentials
// table.
type PostgresRepository struct {
	conn *db.Connection
}

func NewPostgresRepository(conn *db.Connection) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

func (r *PostgresRepository) Upsert(ctx context.Context, cred Credential) error {
	_, err := r.conn.Pool.Exec(ctx,
		`INSERT INTO platform_credentials (org_id, platform, base_url, token, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (org_id, platform)
		 DO UPDATE SET base_url = EXCLUDED.base_url,
		               token = EXCLUDED.token,
		               updated_at = now()`,
		cred.OrgID, strings.ToLower(cred.Platform), cred.BaseURL, cred.Token)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, orgID uuid.UUID, platform string) (Credential, error) {
	cred := Credential{OrgID: orgID}
	err := r.conn.Pool.QueryRow(ctx,
		`SELECT platform, base_url, token FROM platform_credentials
		 WHERE org_id = $1 AND platform = $2`,
		orgID, strings.ToLower(platform)).
		Scan(&cred.Platform, &cred.BaseURL, &cred.Token)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, fmt.Errorf("%w: %s", ErrNotConfigured, platform)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("load credential: %w", err)
	}
	return cred, nil
}

func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]Credential, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT platform, base_url, token FROM platform_credentials
		 WHERE org_id = $1 ORDER BY platform`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		cred := Credential{OrgID: orgID}
		if err := rows.Scan(&cred.Platform, &cred.BaseURL, &cred.Token); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}
