package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/storytimeapp/storytime-functions/internal/gcp"
)

// referenceImagePrefix is where the web client uploads reference photos:
// reference/<storybookId>/<filename>.
const referenceImagePrefix = "reference/"

// GCSEvent is the storage object payload delivered on object finalize.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// ReferenceRecorder records the reference image URL on a storybook.
type ReferenceRecorder interface {
	SetReferenceImageURL(ctx context.Context, storybookID, url string) error
}

// ReferenceImageIntakeFunction reacts to reference image uploads in the
// assets bucket and records the public URL on the owning storybook, so
// the image pipeline can later anchor every page's generation call on it.
type ReferenceImageIntakeFunction struct {
	storybooks ReferenceRecorder
}

// NewReferenceImageIntake creates a new ReferenceImageIntakeFunction instance.
func NewReferenceImageIntake(ctx context.Context) (*ReferenceImageIntakeFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &ReferenceImageIntakeFunction{
		storybooks: gcp.NewStorybookStore(firestoreClient, gcp.GetEnv("STORYBOOKS_COLLECTION", "storybooks")),
	}, nil
}

// Process handles one finalized object. Objects outside the reference
// prefix and non-image uploads are skipped with a clean exit so the
// platform does not retry them; a Firestore failure is returned so the
// event is redelivered.
func (f *ReferenceImageIntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	storybookID, ok := storybookIDFromObjectName(e.Name)
	if !ok {
		logCtx.Info("Object is not a reference image upload. Skipping.")
		return nil
	}
	logCtx = logCtx.With("storybookId", storybookID)

	if !strings.HasPrefix(e.ContentType, "image/") {
		logCtx.Warn("Reference upload is not an image. Skipping.", "contentType", e.ContentType)
		return nil
	}

	publicURL := fmt.Sprintf("https://storage.googleapis.com/%s/%s", e.Bucket, e.Name)
	if err := f.storybooks.SetReferenceImageURL(ctx, storybookID, publicURL); err != nil {
		logCtx.Error("Failed to record reference image URL", "error", err)
		return err
	}

	logCtx.Info("Recorded reference image on storybook.", "referenceImageUrl", publicURL)
	return nil
}

// storybookIDFromObjectName extracts the storybook id from an object path
// of the form reference/<storybookId>/<filename>.
func storybookIDFromObjectName(name string) (string, bool) {
	if !strings.HasPrefix(name, referenceImagePrefix) {
		return "", false
	}
	parts := strings.SplitN(name, "/", 3)
	if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
		return "", false
	}
	return parts[1], true
}
