package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/storytimeapp/storytime-functions/internal/elevenlabs"
	"github.com/storytimeapp/storytime-functions/internal/gcp"
	"github.com/storytimeapp/storytime-functions/internal/models"
)

const (
	voicesCacheKey = "voices"
	voicesCacheTTL = 30 * time.Minute
)

// VoicesProvider lists the narration voices offered by the TTS provider.
type VoicesProvider interface {
	Voices(ctx context.Context) ([]models.Voice, error)
}

// VoiceListFunction serves the narration voice catalog. The catalog
// changes rarely, so results are cached in-process.
type VoiceListFunction struct {
	provider VoicesProvider
	cache    *cache.Cache
}

// NewVoiceList creates a new VoiceListFunction instance.
func NewVoiceList(ctx context.Context) (*VoiceListFunction, error) {
	apiKey := gcp.GetEnv("ELEVENLABS_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY environment variable must be set")
	}
	client, err := elevenlabs.NewClient(elevenlabs.Config{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create elevenlabs client: %w", err)
	}
	return newVoiceList(client), nil
}

func newVoiceList(provider VoicesProvider) *VoiceListFunction {
	return &VoiceListFunction{
		provider: provider,
		cache:    cache.New(voicesCacheTTL, time.Hour),
	}
}

// Process returns the voice catalog, consulting the cache first.
func (f *VoiceListFunction) Process(ctx context.Context) (*models.VoiceListResponse, error) {
	if cached, ok := f.cache.Get(voicesCacheKey); ok {
		return &models.VoiceListResponse{Voices: cached.([]models.Voice)}, nil
	}

	voices, err := f.provider.Voices(ctx)
	if err != nil {
		slog.Error("Failed to fetch voices from provider", "error", err)
		return nil, fmt.Errorf("failed to fetch voices: %w", err)
	}
	f.cache.Set(voicesCacheKey, voices, cache.DefaultExpiration)

	slog.Info("Fetched voice catalog from provider.", "voiceCount", len(voices))
	return &models.VoiceListResponse{Voices: voices}, nil
}
