// Package services – SettingsService
//
// This file implements the SettingsService, which owns the platform's single
// active configuration: which AI backend is enabled and the credentials for
// the external collaborators. It enforces the backend mutual-exclusion
// invariant, substitutes defaults when nothing has been stored yet, and
// redacts credentials before anything leaves the service boundary.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/limva/limva-backend/internal/ai"
	"github.com/limva/limva-backend/internal/domain"
	"github.com/limva/limva-backend/internal/repo"
	"github.com/limva/limva-backend/internal/sysutil"
)

// RedactionMarker replaces stored credentials in every externally visible
// settings payload. Clients echo it back on update to mean "keep the stored
// key".
const RedactionMarker = "***"

// SettingsView is the redacted, external-facing shape of AdminSettings.
// Credential fields carry either "" (not configured) or RedactionMarker.
type SettingsView struct {
	DeepseekEnabled  bool   `json:"deepseekEnabled"`
	Gpt5Enabled      bool   `json:"gpt5Enabled"`
	OpenRouterAPIKey string `json:"openrouterApiKey"`
	ImgBBAPIKey      string `json:"imgbbApiKey"`
}

// UpdateSettingsInput is the caller-supplied payload for a settings update.
type UpdateSettingsInput struct {
	DeepseekEnabled  bool
	Gpt5Enabled      bool
	OpenRouterAPIKey string
	ImgBBAPIKey      string
}

// SettingsService reads and replaces the admin settings row.
type SettingsService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// FallbackOpenRouterKey and FallbackImgBBKey come from the environment
	// and are used when no key has been stored through the admin panel.
	FallbackOpenRouterKey string
	FallbackImgBBKey      string
}

// Current returns the effective settings: the stored row when one exists,
// otherwise the documented defaults (Deepseek on, GPT-5 off, no keys). The
// returned struct carries real credentials and must not leave the service
// layer unredacted.
func (s *SettingsService) Current(ctx context.Context) (*domain.AdminSettings, error) {
	stored, err := repo.GetAdminSettings(ctx, s.DB)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.AdminSettings{DeepseekEnabled: true, Gpt5Enabled: false}, nil
		}
		return nil, err
	}
	return stored, nil
}

// View returns the current settings with credentials redacted.
func (s *SettingsService) View(ctx context.Context) (SettingsView, error) {
	cur, err := s.Current(ctx)
	if err != nil {
		return SettingsView{}, err
	}
	return redact(cur), nil
}

// Update resolves the mutual-exclusion invariant and replaces the stored
// settings row wholesale.
//
// Invariant: at most one backend flag survives. When both are requested
// true, Deepseek wins — this store-level tie-break is the authoritative
// policy; handlers never re-derive it. A credential equal to RedactionMarker
// keeps the currently stored key, so clients can round-trip the redacted
// view without wiping credentials.
func (s *SettingsService) Update(ctx context.Context, in UpdateSettingsInput) (SettingsView, error) {
	deepseek, gpt5 := in.DeepseekEnabled, in.Gpt5Enabled
	if deepseek && gpt5 {
		deepseek, gpt5 = true, false
	}

	cur, err := s.Current(ctx)
	if err != nil {
		return SettingsView{}, err
	}

	openRouterKey := in.OpenRouterAPIKey
	if openRouterKey == RedactionMarker {
		openRouterKey = cur.OpenRouterAPIKey
	}
	imgbbKey := in.ImgBBAPIKey
	if imgbbKey == RedactionMarker {
		imgbbKey = cur.ImgBBAPIKey
	}

	saved, err := repo.ReplaceAdminSettings(ctx, s.DB, &domain.AdminSettings{
		DeepseekEnabled:  deepseek,
		Gpt5Enabled:      gpt5,
		OpenRouterAPIKey: openRouterKey,
		ImgBBAPIKey:      imgbbKey,
	})
	if err != nil {
		return SettingsView{}, err
	}
	return redact(saved), nil
}

// UseGpt5 reports whether completion requests should route to GPT-5: only
// when GPT-5 is enabled and Deepseek is not.
func UseGpt5(s *domain.AdminSettings) bool {
	return s.Gpt5Enabled && !s.DeepseekEnabled
}

// SelectModel resolves the chat model identifier and the OpenRouter API key
// for the current settings. Returns ErrAPIKeyMissing when neither the stored
// settings nor the environment provide a key.
func (s *SettingsService) SelectModel(ctx context.Context) (model, apiKey string, err error) {
	cur, err := s.Current(ctx)
	if err != nil {
		return "", "", err
	}
	apiKey = sysutil.FirstNonEmpty(cur.OpenRouterAPIKey, s.FallbackOpenRouterKey)
	if apiKey == "" {
		return "", "", ErrAPIKeyMissing
	}
	if UseGpt5(cur) {
		return ai.ModelGPT5, apiKey, nil
	}
	return ai.ModelDeepseek, apiKey, nil
}

// SelectVisionModel resolves the vision-capable model identifier and API key
// for matrix-based test generation.
func (s *SettingsService) SelectVisionModel(ctx context.Context) (model, apiKey string, err error) {
	cur, err := s.Current(ctx)
	if err != nil {
		return "", "", err
	}
	apiKey = sysutil.FirstNonEmpty(cur.OpenRouterAPIKey, s.FallbackOpenRouterKey)
	if apiKey == "" {
		return "", "", ErrAPIKeyMissing
	}
	if UseGpt5(cur) {
		return ai.ModelVisionGPT, apiKey, nil
	}
	return ai.ModelVisionGemini, apiKey, nil
}

// ImageKey resolves the ImgBB API key, or ErrImageKeyMissing.
func (s *SettingsService) ImageKey(ctx context.Context) (string, error) {
	cur, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	key := sysutil.FirstNonEmpty(cur.ImgBBAPIKey, s.FallbackImgBBKey)
	if key == "" {
		return "", ErrImageKeyMissing
	}
	return key, nil
}

// redact maps stored settings onto the external view, masking non-empty
// credentials.
func redact(s *domain.AdminSettings) SettingsView {
	v := SettingsView{
		DeepseekEnabled: s.DeepseekEnabled,
		Gpt5Enabled:     s.Gpt5Enabled,
	}
	if s.OpenRouterAPIKey != "" {
		v.OpenRouterAPIKey = RedactionMarker
	}
	if s.ImgBBAPIKey != "" {
		v.ImgBBAPIKey = RedactionMarker
	}
	return v
}
