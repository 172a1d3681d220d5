package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/classlens-inc/classlens-engine/pkg/database"
)

// CredentialRepository persists encrypted credential values by name.
// Values arrive already encrypted; this layer never sees plaintext.
type CredentialRepository interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, encryptedValue string) error
	Delete(ctx context.Context, name string) error
}

type credentialRepository struct {
	db *database.DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *database.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

var _ CredentialRepository = (*credentialRepository)(nil)

// Get returns the encrypted value, or "" when the credential is unset.
func (r *credentialRepository) Get(ctx context.Context, name string) (string, error) {
	query := `SELECT encrypted_value FROM engine_credentials WHERE name = $1`

	var value string
	err := r.db.QueryRow(ctx, query, name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get credential: %w", err)
	}

	return value, nil
}

func (r *credentialRepository) Set(ctx context.Context, name, encryptedValue string) error {
	query := `
		INSERT INTO engine_credentials (name, encrypted_value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name)
		DO UPDATE SET encrypted_value = EXCLUDED.encrypted_value, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.Exec(ctx, query, name, encryptedValue, time.Now()); err != nil {
		return fmt.Errorf("failed to set credential: %w", err)
	}

	return nil
}

func (r *credentialRepository) Delete(ctx context.Context, name string) error {
	query := `DELETE FROM engine_credentials WHERE name = $1`

	if _, err := r.db.Exec(ctx, query, name); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	return nil
}
