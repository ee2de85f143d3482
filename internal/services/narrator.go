package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/storytimeapp/storytime-functions/internal/elevenlabs"
	"github.com/storytimeapp/storytime-functions/internal/gcp"
	"github.com/storytimeapp/storytime-functions/internal/models"
)

// ErrMissingNarrationParams is returned when the narration payload lacks
// its required fields.
var ErrMissingNarrationParams = errors.New("Missing required parameters: text and voice_id")

const audioContentType = "audio/mpeg"

// TTSProvider renders story text into narration audio.
type TTSProvider interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// AudioRecorder records the narration URL on a storybook.
type AudioRecorder interface {
	SetAudioURL(ctx context.Context, storybookID, url string) error
}

// NarratorFunction synthesizes narration audio for story text, stores the
// MP3 in the assets bucket and hands back its public URL.
type NarratorFunction struct {
	tts        TTSProvider
	objects    ObjectStore
	storybooks AudioRecorder
}

// NewNarrator creates a new NarratorFunction instance.
func NewNarrator(ctx context.Context) (*NarratorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	assetsBucket := gcp.GetEnv("STORYBOOK_ASSETS_BUCKET", "")
	if assetsBucket == "" {
		return nil, fmt.Errorf("STORYBOOK_ASSETS_BUCKET environment variable must be set")
	}
	apiKey := gcp.GetEnv("ELEVENLABS_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY environment variable must be set")
	}

	ttsClient, err := elevenlabs.NewClient(elevenlabs.Config{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create elevenlabs client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &NarratorFunction{
		tts:        ttsClient,
		objects:    gcp.NewBucketStore(storageClient, assetsBucket),
		storybooks: gcp.NewStorybookStore(firestoreClient, gcp.GetEnv("STORYBOOKS_COLLECTION", "storybooks")),
	}, nil
}

// Process synthesizes narration for the given text and stores it. When a
// storybook id is supplied the audio URL is also recorded on the
// storybook; a failure to record it is logged but does not fail the
// request, since the audio itself is already durable and returned.
func (f *NarratorFunction) Process(ctx context.Context, req *models.NarrationRequest) (*models.NarrationResponse, error) {
	if req.Text == "" || req.VoiceID == "" {
		return nil, ErrMissingNarrationParams
	}

	logCtx := slog.With("voiceId", req.VoiceID, "storybookId", req.StorybookID)
	logCtx.Info("Starting narration synthesis.", "textLength", len(req.Text))

	audio, err := f.tts.Synthesize(ctx, req.Text, req.VoiceID)
	if err != nil {
		logCtx.Error("TTS synthesis failed", "error", err)
		return nil, fmt.Errorf("failed to synthesize narration: %w", err)
	}

	objectName := narrationObjectName(req.StorybookID)
	if err := f.objects.Upload(ctx, objectName, audioContentType, audio); err != nil {
		logCtx.Error("Failed to upload narration audio", "error", err, "objectName", objectName)
		return nil, fmt.Errorf("failed to store narration audio: %w", err)
	}

	audioURL := f.objects.PublicURL(objectName)
	if audioURL == "" {
		return nil, fmt.Errorf("failed to get public URL for narration audio")
	}

	if req.StorybookID != "" {
		if err := f.storybooks.SetAudioURL(ctx, req.StorybookID, audioURL); err != nil {
			logCtx.Warn("Failed to record audio URL on storybook", "error", err)
		}
	}

	logCtx.Info("Narration synthesis complete.", "audioUrl", audioURL, "audioBytes", len(audio))
	return &models.NarrationResponse{Success: true, AudioURL: audioURL}, nil
}

// narrationObjectName derives the storage path for narration audio. Audio
// for a storybook lands on a deterministic path so re-narration
// overwrites; anonymous previews get a fresh path each time.
func narrationObjectName(storybookID string) string {
	if storybookID == "" {
		return fmt.Sprintf("audio/anonymous/%s.mp3", uuid.NewString())
	}
	return fmt.Sprintf("audio/%s/narration.mp3", storybookID)
}
