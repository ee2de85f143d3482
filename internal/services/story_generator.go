package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/sync/errgroup"

	"github.com/storytimeapp/storytime-functions/internal/gcp"
	"github.com/storytimeapp/storytime-functions/internal/models"
)

// ErrMissingStoryParams is returned when the wizard payload lacks its
// required fields.
var ErrMissingStoryParams = errors.New("Missing required parameters: child_name and theme")

const (
	defaultStoryPages = 8
	minStoryPages     = 6
	maxStoryPages     = 16
)

// StorybookCreator persists new storybook parent records.
type StorybookCreator interface {
	Create(ctx context.Context, storybook models.Storybook) (string, error)
}

// PageCreator persists new page records.
type PageCreator interface {
	CreatePage(ctx context.Context, page models.Page) (string, error)
}

// StoryGeneratorConfig holds all configuration for the story generator service.
type StoryGeneratorConfig struct {
	ProjectID            string
	VertexAIRegion       string
	StorybooksCollection string
	PagesCollection      string
}

// StoryGeneratorFunction turns wizard parameters into a persisted
// storybook: a title plus page texts from the storyteller model, with
// every page created in "pending" image state.
type StoryGeneratorFunction struct {
	vertexClient *gcp.VertexClient
	storybooks   StorybookCreator
	pages        PageCreator
}

// parsedStory defines the structure of the JSON object we expect from the
// storyteller model response.
type parsedStory struct {
	Title string `json:"title"`
	Pages []struct {
		PageNumber int    `json:"page_number"`
		Text       string `json:"text"`
	} `json:"pages"`
}

// NewStoryGenerator creates a new StoryGeneratorFunction instance.
func NewStoryGenerator(ctx context.Context) (*StoryGeneratorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := StoryGeneratorConfig{
		ProjectID:            projectID,
		VertexAIRegion:       gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		StorybooksCollection: gcp.GetEnv("STORYBOOKS_COLLECTION", "storybooks"),
		PagesCollection:      gcp.GetEnv("PAGES_COLLECTION", "storybook_pages"),
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	return &StoryGeneratorFunction{
		vertexClient: vertexClient,
		storybooks:   gcp.NewStorybookStore(firestoreClient, config.StorybooksCollection),
		pages:        gcp.NewPageStore(firestoreClient, config.PagesCollection),
	}, nil
}

// Process handles the core logic of generating and persisting a story.
func (f *StoryGeneratorFunction) Process(ctx context.Context, req *models.StoryGeneratorRequest) (*models.StoryGeneratorResponse, error) {
	if req.ChildName == "" || req.Theme == "" {
		return nil, ErrMissingStoryParams
	}

	logCtx := slog.With("childName", req.ChildName, "theme", req.Theme)
	logCtx.Info("Starting story generation.")

	model := f.vertexClient.StorytellerModel
	userPrompt := buildStoryUserPrompt(req)

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		logCtx.Error("Call to Vertex AI for story generation failed", "error", err)
		return nil, fmt.Errorf("failed to generate story from gemini: %w", err)
	}

	jsonString := extractJSONText(resp)
	if jsonString == "" {
		err := fmt.Errorf("gemini returned an empty response instead of JSON")
		logCtx.Error("Empty response from Gemini", "error", err)
		return nil, err
	}
	if isRefusal(jsonString) {
		err := fmt.Errorf("gemini response indicates refusal to write the story")
		logCtx.Error("LLM refusal detected", "error", err, "response", jsonString)
		return nil, err
	}

	story, err := parseStory(jsonString)
	if err != nil {
		logCtx.Error("Failed to parse story JSON from Gemini", "error", err, "responseBody", jsonString)
		return nil, err
	}

	storybookID, err := f.storybooks.Create(ctx, models.Storybook{
		Title:     story.Title,
		ChildName: req.ChildName,
		Theme:     req.Theme,
		Status:    "draft",
	})
	if err != nil {
		logCtx.Error("Failed to create storybook record", "error", err)
		return nil, err
	}
	logCtx = logCtx.With("storybookId", storybookID)
	logCtx.Info("Created storybook record.", "title", story.Title, "pageCount", len(story.Pages))

	if err := f.persistPages(ctx, storybookID, story); err != nil {
		logCtx.Error("Failed to persist story pages", "error", err)
		return nil, err
	}
	logCtx.Info("Story generation complete.")

	return &models.StoryGeneratorResponse{
		Success:     true,
		StorybookID: storybookID,
		Title:       story.Title,
		PageCount:   len(story.Pages),
	}, nil
}

// persistPages writes the page records concurrently; each page starts in
// the pending image state so the image pipeline can pick it up later.
func (f *StoryGeneratorFunction) persistPages(ctx context.Context, storybookID string, story *parsedStory) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(8)

	for _, page := range story.Pages {
		eg.Go(func() error {
			_, err := f.pages.CreatePage(gctx, models.Page{
				StorybookID: storybookID,
				PageNumber:  page.PageNumber,
				Text:        page.Text,
				ImageStatus: models.ImageStatusPending,
			})
			if err != nil {
				return fmt.Errorf("page %d: %w", page.PageNumber, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// buildStoryUserPrompt renders the wizard parameters into the storyteller
// user prompt.
func buildStoryUserPrompt(req *models.StoryGeneratorRequest) string {
	var b strings.Builder
	b.WriteString(gcp.StorytellerUserPrompt)
	b.WriteString("\n\nStory parameters:\n")
	fmt.Fprintf(&b, "- Child's name: %s\n", req.ChildName)
	fmt.Fprintf(&b, "- Theme: %s\n", req.Theme)
	if req.AgeRange != "" {
		fmt.Fprintf(&b, "- Age range: %s\n", req.AgeRange)
	}
	if req.Characters != "" {
		fmt.Fprintf(&b, "- Other characters: %s\n", req.Characters)
	}
	if req.EducationalFocus != "" {
		fmt.Fprintf(&b, "- Educational focus: %s\n", req.EducationalFocus)
	}
	if req.AdditionalInstructions != "" {
		fmt.Fprintf(&b, "- Additional instructions: %s\n", req.AdditionalInstructions)
	}
	fmt.Fprintf(&b, "- Number of pages: %d\n", storyPageTarget(req.LengthMinutes))
	return b.String()
}

// storyPageTarget maps the requested reading length to a page count.
func storyPageTarget(lengthMinutes int) int {
	if lengthMinutes <= 0 {
		return defaultStoryPages
	}
	pages := lengthMinutes * 2
	if pages < minStoryPages {
		return minStoryPages
	}
	if pages > maxStoryPages {
		return maxStoryPages
	}
	return pages
}

// parseStory validates and decodes the model's JSON output.
func parseStory(jsonString string) (*parsedStory, error) {
	var story parsedStory
	if err := json.Unmarshal([]byte(jsonString), &story); err != nil {
		return nil, fmt.Errorf("failed to parse story JSON from model: %w", err)
	}
	if story.Title == "" {
		return nil, fmt.Errorf("model output is missing a story title")
	}
	if len(story.Pages) == 0 {
		return nil, fmt.Errorf("model output contains no story pages")
	}
	for i, page := range story.Pages {
		if page.Text == "" {
			return nil, fmt.Errorf("model output page %d has no text", i+1)
		}
	}
	return &story, nil
}

// refusalPhrases is a sanity check for LLM refusal; if the model refuses
// to answer, we must fail fast instead of persisting the refusal text.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

func isRefusal(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// extractJSONText robustly gets the raw text content from the model response.
func extractJSONText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	// The model is configured to return JSON, so we expect a single text part.
	if txt, ok := resp.Candidates[0].Content.Parts[0].(genai.Text); ok {
		// Clean potential markdown fences just in case
		cleanJSON := strings.TrimSpace(string(txt))
		cleanJSON = strings.TrimPrefix(cleanJSON, "```json")
		cleanJSON = strings.TrimSuffix(cleanJSON, "```")
		return strings.TrimSpace(cleanJSON)
	}
	return ""
}
