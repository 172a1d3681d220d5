// Package secrets gates the fallback vision path behind a stored API key.
package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
	"github.com/classlens-inc/classlens-engine/pkg/crypto"
	"github.com/classlens-inc/classlens-engine/pkg/repositories"
)

// visionCredentialName keys the fallback vision API key in the store.
const visionCredentialName = "vision_api_key"

// Store is the credential contract the pipeline requires: get returns
// "" when no credential is configured, set and delete manage it. The
// plaintext key only exists in memory; at rest it is AES-GCM encrypted.
type Store interface {
	GetCredential(ctx context.Context) (string, error)
	SetCredential(ctx context.Context, value string) error
	DeleteCredential(ctx context.Context) error
}

type store struct {
	repo      repositories.CredentialRepository
	encryptor *crypto.CredentialEncryptor
	logger    *zap.Logger
}

// NewStore creates a credential store over the given repository.
func NewStore(repo repositories.CredentialRepository, encryptor *crypto.CredentialEncryptor, logger *zap.Logger) Store {
	return &store{
		repo:      repo,
		encryptor: encryptor,
		logger:    logger.Named("secrets"),
	}
}

var _ Store = (*store)(nil)

func (s *store) GetCredential(ctx context.Context) (string, error) {
	encrypted, err := s.repo.Get(ctx, visionCredentialName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrStoreAccess, err)
	}
	if encrypted == "" {
		return "", nil
	}

	value, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		// A credential we can no longer decrypt is as good as absent,
		// but the operator needs to know the key changed.
		s.logger.Error("Failed to decrypt stored credential", zap.Error(err))
		return "", fmt.Errorf("%w: %v", apperrors.ErrStoreAccess, err)
	}

	return value, nil
}

func (s *store) SetCredential(ctx context.Context, value string) error {
	if value == "" {
		return fmt.Errorf("credential value is required")
	}

	encrypted, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreAccess, err)
	}

	if err := s.repo.Set(ctx, visionCredentialName, encrypted); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreAccess, err)
	}

	s.logger.Info("Vision credential updated")
	return nil
}

func (s *store) DeleteCredential(ctx context.Context) error {
	if err := s.repo.Delete(ctx, visionCredentialName); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreAccess, err)
	}

	s.logger.Info("Vision credential removed")
	return nil
}
