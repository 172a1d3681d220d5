package vision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
	"github.com/classlens-inc/classlens-engine/pkg/config"
	"github.com/classlens-inc/classlens-engine/pkg/secrets"
)

// Factory creates vision clients from server configuration and the
// stored credential.
type Factory struct {
	cfg     *config.VisionConfig
	secrets secrets.Store
	logger  *zap.Logger
}

// NewFactory creates a new factory.
func NewFactory(cfg *config.VisionConfig, secretStore secrets.Store, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:     cfg,
		secrets: secretStore,
		logger:  logger,
	}
}

var _ RecognizerFactory = (*Factory)(nil)

// Create builds a recognizer for the configured provider. It resolves
// the stored API key first and short-circuits with ErrCredentialMissing
// before any network call when no key is configured, so the caller can
// redirect the user to credential setup.
func (f *Factory) Create(ctx context.Context) (NameRecognizer, error) {
	apiKey, err := f.secrets.GetCredential(ctx)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, apperrors.ErrCredentialMissing
	}

	clientCfg := &Config{
		Endpoint: f.cfg.Endpoint,
		Model:    f.cfg.Model,
		APIKey:   apiKey,
		Timeout:  time.Duration(f.cfg.TimeoutSeconds) * time.Second,
	}

	switch f.cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(clientCfg, f.logger)
	case "openai", "":
		return NewOpenAIClient(clientCfg, f.logger)
	default:
		return nil, fmt.Errorf("unknown vision provider: %s", f.cfg.Provider)
	}
}
