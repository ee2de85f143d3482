package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/storytimeapp/storytime-functions/internal/models"
)

func TestParseStory(t *testing.T) {
	story, err := parseStory(`{"title":"Luna's Voyage","pages":[{"page_number":1,"text":"Luna set sail."},{"page_number":2,"text":"The sea sang."}]}`)
	if err != nil {
		t.Fatalf("parseStory: %v", err)
	}
	if story.Title != "Luna's Voyage" || len(story.Pages) != 2 {
		t.Errorf("unexpected story: %+v", story)
	}
	if story.Pages[1].PageNumber != 2 || story.Pages[1].Text != "The sea sang." {
		t.Errorf("unexpected second page: %+v", story.Pages[1])
	}
}

func TestParseStoryRejectsBadOutput(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", "once upon a time"},
		{"missing title", `{"pages":[{"page_number":1,"text":"x"}]}`},
		{"no pages", `{"title":"T","pages":[]}`},
		{"empty page text", `{"title":"T","pages":[{"page_number":1,"text":""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseStory(tt.json); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestIsRefusal(t *testing.T) {
	if !isRefusal("I cannot fulfill this request.") {
		t.Error("refusal text not detected")
	}
	if isRefusal(`{"title":"The Brave Fox","pages":[]}`) {
		t.Error("ordinary JSON flagged as refusal")
	}
}

func TestBuildStoryUserPrompt(t *testing.T) {
	got := buildStoryUserPrompt(&models.StoryGeneratorRequest{
		ChildName:        "Maya",
		Theme:            "space exploration",
		AgeRange:         "4-6",
		EducationalFocus: "counting",
		LengthMinutes:    5,
	})
	for _, want := range []string{"Maya", "space exploration", "4-6", "counting", "Number of pages: 10"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, "Other characters") {
		t.Error("empty optional field rendered into prompt")
	}
}

func TestStoryPageTarget(t *testing.T) {
	tests := []struct {
		minutes int
		want    int
	}{
		{0, defaultStoryPages},
		{-1, defaultStoryPages},
		{1, minStoryPages},
		{5, 10},
		{30, maxStoryPages},
	}
	for _, tt := range tests {
		if got := storyPageTarget(tt.minutes); got != tt.want {
			t.Errorf("storyPageTarget(%d) = %d, want %d", tt.minutes, got, tt.want)
		}
	}
}

type fakePageCreator struct {
	mu    sync.Mutex
	pages []models.Page
	err   error
}

func (c *fakePageCreator) CreatePage(ctx context.Context, page models.Page) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.pages = append(c.pages, page)
	return "generated-id", nil
}

func TestPersistPages(t *testing.T) {
	creator := &fakePageCreator{}
	f := &StoryGeneratorFunction{pages: creator}

	story, err := parseStory(`{"title":"T","pages":[{"page_number":1,"text":"a"},{"page_number":2,"text":"b"},{"page_number":3,"text":"c"}]}`)
	if err != nil {
		t.Fatalf("parseStory: %v", err)
	}
	if err := f.persistPages(context.Background(), "sb1", story); err != nil {
		t.Fatalf("persistPages: %v", err)
	}
	if len(creator.pages) != 3 {
		t.Fatalf("expected 3 pages persisted, got %d", len(creator.pages))
	}
	for _, page := range creator.pages {
		if page.StorybookID != "sb1" {
			t.Errorf("page %d has storybook id %q", page.PageNumber, page.StorybookID)
		}
		if page.ImageStatus != models.ImageStatusPending {
			t.Errorf("page %d created with status %q, want pending", page.PageNumber, page.ImageStatus)
		}
	}
}
