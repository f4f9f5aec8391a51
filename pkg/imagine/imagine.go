// Package imagine generates images by trying the catalog's image-capable
// models in priority order. Credits are debited exactly once, after the
// first candidate that yields an artifact.
package imagine

import (
	"context"
	"errors"

	"github.com/avrebarra/lumora/pkg/catalog"
	"github.com/avrebarra/lumora/pkg/fallback"
	"github.com/avrebarra/lumora/pkg/ledger"
	"github.com/avrebarra/lumora/pkg/llm"
	"github.com/avrebarra/lumora/pkg/secrets"
	"github.com/rs/zerolog"
)

// Image is one generated artifact. Exactly one of URL or B64 is set,
// depending on what the backend returns.
type Image struct {
	URL      string `json:"url,omitempty"`
	B64      string `json:"b64,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// GenerateResult is the outcome of one successful pass.
type GenerateResult struct {
	Images    []Image  `json:"images"`
	ModelID   string   `json:"model_id"`
	WaitHints []string `json:"wait_hints,omitempty"`
}

// Service orchestrates image generation.
type Service struct {
	catalog     *catalog.Catalog
	secrets     secrets.Provider
	gate        *ledger.Gate
	coordinator *fallback.Coordinator
	logger      zerolog.Logger
}

// Config holds service dependencies.
type Config struct {
	Catalog     *catalog.Catalog
	Secrets     secrets.Provider
	Gate        *ledger.Gate
	Coordinator *fallback.Coordinator
	Logger      zerolog.Logger
}

// New creates an image generation service.
func New(cfg Config) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Secrets == nil {
		return nil, errors.New("secret provider is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("ledger gate is required")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("fallback coordinator is required")
	}
	return &Service{
		catalog:     cfg.Catalog,
		secrets:     cfg.Secrets,
		gate:        cfg.Gate,
		coordinator: cfg.Coordinator,
		logger:      cfg.Logger,
	}, nil
}

// Generate runs one billable image generation pass for an account.
func (s *Service) Generate(ctx context.Context, accountID, prompt string) (*GenerateResult, error) {
	candidates := s.catalog.Snapshot().ImageCandidates()
	if len(candidates) == 0 {
		return nil, llm.NewError(llm.KindConfigurationError, "no image-capable models configured")
	}

	ticket, err := s.gate.Authorize(ctx, accountID, ledger.FeatureImage)
	if err != nil {
		return nil, err
	}

	result, err := fallback.Run(ctx, s.coordinator, candidates, s.invoke(prompt))
	if err != nil {
		if releaseErr := s.gate.Release(ctx, ticket); releaseErr != nil {
			s.logger.Error().Err(releaseErr).Str("account_id", accountID).Msg("Failed to release image ticket")
		}
		return nil, err
	}

	if _, err := s.gate.Commit(ctx, ticket, "image_generation", map[string]interface{}{
		"model_id": result.Candidate.ID,
		"provider": result.Candidate.Provider,
	}); err != nil {
		// The artifact exists and the debit stands; surface the artifact
		// and let the reaper settle the ticket.
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to commit image usage")
	}

	return &GenerateResult{
		Images:    result.Artifacts,
		ModelID:   result.Candidate.ID,
		WaitHints: result.WaitHints,
	}, nil
}

// invoke returns the per-candidate attempt function for a prompt.
func (s *Service) invoke(prompt string) fallback.Invoke[Image] {
	return func(ctx context.Context, candidate catalog.Descriptor) ([]Image, error) {
		credential, err := s.secrets.GetDecryptedCredential(candidate.Provider)
		if err != nil {
			return nil, llm.Errorf(llm.KindConfigurationError, "no credential for provider %s", candidate.Provider)
		}

		switch candidate.Provider {
		case llm.FamilyOpenAI:
			return s.generateOpenAI(ctx, candidate, credential, prompt)
		case llm.FamilyGemini:
			return s.generateGemini(ctx, candidate, credential, prompt)
		default:
			return nil, llm.Errorf(llm.KindConfigurationError, "provider %s cannot generate images", candidate.Provider)
		}
	}
}
