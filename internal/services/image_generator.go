package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/storytimeapp/storytime-functions/internal/fal"
	"github.com/storytimeapp/storytime-functions/internal/gcp"
	"github.com/storytimeapp/storytime-functions/internal/models"
	"github.com/storytimeapp/storytime-functions/internal/prompt"
)

// Sentinel errors the HTTP entry point maps to status codes.
var (
	ErrMissingParams = errors.New("Missing required parameters: storybook_id and reference_image_url")
	ErrNoPages       = errors.New("No pages found for this storybook.")
)

const defaultImageContentType = "image/png"

// PageStore is the pipeline's view of the page records. The persisted
// imageStatus field is the authoritative record of each page's outcome.
type PageStore interface {
	ListByStorybook(ctx context.Context, storybookID string) ([]models.Page, error)
	UpdatePage(ctx context.Context, pageID string, upd models.PageUpdate) error
}

// ObjectStore is the pipeline's view of the public assets bucket.
type ObjectStore interface {
	Upload(ctx context.Context, objectName, contentType string, data []byte) error
	PublicURL(objectName string) string
}

// ImageProvider generates one illustration anchored on the reference image.
type ImageProvider interface {
	Generate(ctx context.Context, referenceImageURL, prompt string) (*fal.Image, error)
}

// ImageGeneratorConfig holds all configuration for the image generation service.
type ImageGeneratorConfig struct {
	ProjectID       string
	PagesCollection string
	AssetsBucket    string
}

// ImageGeneratorFunction orchestrates per-page illustration generation
// for a storybook. Pages are processed strictly sequentially; a page
// failure is recorded on the page and never aborts the run.
type ImageGeneratorFunction struct {
	pages    PageStore
	objects  ObjectStore
	provider ImageProvider
}

// pageOutcome is the per-page result collected over a run. The HTTP
// response only carries the page count; outcomes feed the run summary log.
type pageOutcome struct {
	PageNumber int
	Status     string
	Err        error
}

func loadImageGeneratorConfig() (*ImageGeneratorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	assetsBucket := gcp.GetEnv("STORYBOOK_ASSETS_BUCKET", "")
	if assetsBucket == "" {
		return nil, fmt.Errorf("STORYBOOK_ASSETS_BUCKET environment variable must be set")
	}

	return &ImageGeneratorConfig{
		ProjectID:       projectID,
		PagesCollection: gcp.GetEnv("PAGES_COLLECTION", "storybook_pages"),
		AssetsBucket:    assetsBucket,
	}, nil
}

// NewImageGenerator creates a new ImageGeneratorFunction instance wired
// to Firestore, Cloud Storage and the Fal API.
func NewImageGenerator(ctx context.Context) (*ImageGeneratorFunction, error) {
	config, err := loadImageGeneratorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	falAPIKey := gcp.GetEnv("FAL_API_KEY", "")
	if falAPIKey == "" {
		return nil, fmt.Errorf("FAL_API_KEY environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	falClient, err := fal.NewClient(fal.Config{APIKey: falAPIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create fal client: %w", err)
	}

	return newImageGenerator(
		gcp.NewPageStore(firestoreClient, config.PagesCollection),
		gcp.NewBucketStore(storageClient, config.AssetsBucket),
		falClient,
	), nil
}

func newImageGenerator(pages PageStore, objects ObjectStore, provider ImageProvider) *ImageGeneratorFunction {
	return &ImageGeneratorFunction{
		pages:    pages,
		objects:  objects,
		provider: provider,
	}
}

// Process runs image generation over every page of a storybook in page
// number order. It fails only before the loop starts (bad parameters,
// fetch failure, no pages); once the loop begins it always reports
// success with the number of pages attempted.
//
// Note that nothing prevents two concurrent runs on the same storybook
// from interleaving writes to the same page; last write wins.
func (f *ImageGeneratorFunction) Process(ctx context.Context, req *models.ImageGeneratorRequest) (*models.ImageGeneratorResponse, error) {
	if req.StorybookID == "" || req.ReferenceImageURL == "" {
		return nil, ErrMissingParams
	}

	runID := uuid.NewString()
	logCtx := slog.With("storybookId", req.StorybookID, "runId", runID)
	logCtx.Info("Starting image generation.")

	pages, err := f.pages.ListByStorybook(ctx, req.StorybookID)
	if err != nil {
		logCtx.Error("Failed to fetch pages", "error", err)
		return nil, fmt.Errorf("failed to fetch pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	logCtx.Info("Found pages to process.", "pageCount", len(pages))

	outcomes := make([]pageOutcome, 0, len(pages))
	for _, page := range pages {
		outcomes = append(outcomes, f.processPage(ctx, logCtx, req, page))
	}

	var completed, failed int
	for _, o := range outcomes {
		if o.Status == models.ImageStatusCompleted {
			completed++
		} else {
			failed++
		}
	}
	logCtx.Info("Finished image generation run.", "pagesProcessed", len(outcomes), "completed", completed, "failed", failed)

	return &models.ImageGeneratorResponse{
		Success: true,
		Message: fmt.Sprintf("Image generation process completed for %d pages.", len(pages)),
	}, nil
}

// processPage runs one self-contained generation attempt. Every error is
// contained here and turned into a failed status on the page.
func (f *ImageGeneratorFunction) processPage(ctx context.Context, logCtx *slog.Logger, req *models.ImageGeneratorRequest, page models.Page) pageOutcome {
	logCtx = logCtx.With("pageId", page.ID, "pageNumber", page.PageNumber)

	// Committed before any external call: a crash from here on leaves the
	// page visibly stuck in "generating" instead of silently untouched.
	if err := f.pages.UpdatePage(ctx, page.ID, models.PageUpdate{
		ImageStatus: models.String(models.ImageStatusGenerating),
	}); err != nil {
		logCtx.Error("Failed to mark page as generating", "error", err)
		return f.failPage(ctx, logCtx, page, err)
	}

	logCtx.Info("Generating image for page.")
	if err := f.generatePageImage(ctx, logCtx, req, page); err != nil {
		logCtx.Error("Error processing page", "error", err)
		return f.failPage(ctx, logCtx, page, err)
	}

	return pageOutcome{PageNumber: page.PageNumber, Status: models.ImageStatusCompleted}
}

func (f *ImageGeneratorFunction) generatePageImage(ctx context.Context, logCtx *slog.Logger, req *models.ImageGeneratorRequest, page models.Page) error {
	summary := prompt.Summarize(page.Text, prompt.DefaultMaxLength)
	imagePrompt := prompt.BuildPrompt(summary)

	// Persisted separately from the status write so the exact prompt used
	// for this attempt survives even if the provider call fails.
	if err := f.pages.UpdatePage(ctx, page.ID, models.PageUpdate{
		ImagePrompt: models.String(imagePrompt),
	}); err != nil {
		return fmt.Errorf("failed to store image prompt: %w", err)
	}

	logCtx.Info("Calling image provider.", "prompt", imagePrompt)
	image, err := f.provider.Generate(ctx, req.ReferenceImageURL, imagePrompt)
	if err != nil {
		return err
	}

	data, err := base64.StdEncoding.DecodeString(image.Content)
	if err != nil {
		return fmt.Errorf("failed to decode image payload: %w", err)
	}

	contentType := image.ContentType
	if contentType == "" {
		contentType = defaultImageContentType
	}

	objectName := pageImageObjectName(req.StorybookID, page.PageNumber)
	logCtx.Info("Uploading image to storage.", "objectName", objectName)
	if err := f.objects.Upload(ctx, objectName, contentType, data); err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}

	publicURL := f.objects.PublicURL(objectName)
	if publicURL == "" {
		return fmt.Errorf("failed to get public URL for uploaded image")
	}

	if err := f.pages.UpdatePage(ctx, page.ID, models.PageUpdate{
		ImageStatus: models.String(models.ImageStatusCompleted),
		ImageURL:    models.String(publicURL),
	}); err != nil {
		return fmt.Errorf("failed to record completed image: %w", err)
	}

	logCtx.Info("Successfully processed page.", "imageUrl", publicURL)
	return nil
}

// failPage records the failure on the page. If even the failed-status
// write errors there is nothing durable left to do; the page stays in
// its last committed state, which an operator can inspect.
func (f *ImageGeneratorFunction) failPage(ctx context.Context, logCtx *slog.Logger, page models.Page, cause error) pageOutcome {
	if err := f.pages.UpdatePage(ctx, page.ID, models.PageUpdate{
		ImageStatus: models.String(models.ImageStatusFailed),
	}); err != nil {
		logCtx.Error("CRITICAL: Failed to mark page as failed after a processing error.", "updateError", err)
	}
	return pageOutcome{PageNumber: page.PageNumber, Status: models.ImageStatusFailed, Err: cause}
}

// pageImageObjectName derives the storage path for a page's illustration.
// The path is deterministic so regeneration overwrites the prior object.
func pageImageObjectName(storybookID string, pageNumber int) string {
	return fmt.Sprintf("images/%s/page_%d.png", storybookID, pageNumber)
}
