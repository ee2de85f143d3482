package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Storyteller Model Prompts ---
const StorytellerSystemPrompt = "You are a celebrated children's storyteller. You write warm, age-appropriate bedtime stories with a clear beginning, middle, and end, gentle vocabulary, and a positive message. You must output your response as a single valid JSON object."
const StorytellerUserPrompt = `Write a personalized children's story using the parameters below.

Follow these rules precisely:
1. The story must star the named child and fit the requested theme.
2. Split the story into the requested number of pages. Each page holds two to four short sentences a parent can read aloud in well under a minute.
3. Give the story a short, evocative title.
4. The final output MUST be a single valid JSON object with exactly two keys:
   - "title": a string containing the story title.
   - "pages": an array of objects, each with exactly two keys:
       - "page_number": an integer starting at 1, increasing by 1 per page.
       - "text": a string containing that page's story text.
5. Do not include any text before or after the JSON object.

Example output format:
{
  "title": "Luna and the Moonlit Garden",
  "pages": [
    { "page_number": 1, "text": "Luna tiptoed into the garden just as the moon rose." },
    { "page_number": 2, "text": "The flowers glowed silver and hummed a quiet song." }
  ]
}`

// VertexClient holds the pre-configured generative models for our app.
type VertexClient struct {
	StorytellerModel *genai.GenerativeModel
	baseClient       *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the storyteller model ---
	storytellerModel := baseClient.GenerativeModel("gemini-1.5-pro")
	storytellerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(StorytellerSystemPrompt)},
	}
	storytellerModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output so the page split survives parsing.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.9),
	}

	return &VertexClient{
		StorytellerModel: storytellerModel,
		baseClient:       baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
