package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/storytimeapp/storytime-functions/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// PageStore reads and writes storybook page records in Firestore. It is
// the single source of truth for per-page image generation status.
type PageStore struct {
	client     *firestore.Client
	collection string
}

// NewPageStore wraps a Firestore client for the given pages collection.
func NewPageStore(client *firestore.Client, collection string) *PageStore {
	return &PageStore{client: client, collection: collection}
}

// ListByStorybook returns all pages of a storybook ordered by page number
// ascending, which is the processing order for a generation run.
func (s *PageStore) ListByStorybook(ctx context.Context, storybookID string) ([]models.Page, error) {
	iter := s.client.Collection(s.collection).
		Where("storybookId", "==", storybookID).
		OrderBy("pageNumber", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var pages []models.Page
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list pages for storybook %s: %w", storybookID, err)
		}
		var page models.Page
		if err := doc.DataTo(&page); err != nil {
			return nil, fmt.Errorf("failed to decode page %s: %w", doc.Ref.ID, err)
		}
		page.ID = doc.Ref.ID
		pages = append(pages, page)
	}
	return pages, nil
}

// UpdatePage applies a partial update to a page document and refreshes
// its updatedAt timestamp.
func (s *PageStore) UpdatePage(ctx context.Context, pageID string, upd models.PageUpdate) error {
	updates := []firestore.Update{
		{Path: "updatedAt", Value: time.Now()},
	}
	if upd.ImageStatus != nil {
		updates = append(updates, firestore.Update{Path: "imageStatus", Value: *upd.ImageStatus})
	}
	if upd.ImagePrompt != nil {
		updates = append(updates, firestore.Update{Path: "imagePrompt", Value: *upd.ImagePrompt})
	}
	if upd.ImageURL != nil {
		updates = append(updates, firestore.Update{Path: "imageUrl", Value: *upd.ImageURL})
	}

	if _, err := s.client.Collection(s.collection).Doc(pageID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update page %s: %w", pageID, err)
	}
	return nil
}

// CreatePage adds a new page document and returns its generated ID.
func (s *PageStore) CreatePage(ctx context.Context, page models.Page) (string, error) {
	page.UpdatedAt = time.Now()
	docRef, _, err := s.client.Collection(s.collection).Add(ctx, page)
	if err != nil {
		return "", fmt.Errorf("failed to create page %d for storybook %s: %w", page.PageNumber, page.StorybookID, err)
	}
	return docRef.ID, nil
}

// StorybookStore reads and writes storybook parent records in Firestore.
type StorybookStore struct {
	client     *firestore.Client
	collection string
}

// NewStorybookStore wraps a Firestore client for the given storybooks collection.
func NewStorybookStore(client *firestore.Client, collection string) *StorybookStore {
	return &StorybookStore{client: client, collection: collection}
}

// Create adds a new storybook document and returns its generated ID.
func (s *StorybookStore) Create(ctx context.Context, storybook models.Storybook) (string, error) {
	storybook.CreatedAt = time.Now()
	storybook.UpdatedAt = storybook.CreatedAt
	docRef, _, err := s.client.Collection(s.collection).Add(ctx, storybook)
	if err != nil {
		return "", fmt.Errorf("failed to create storybook: %w", err)
	}
	return docRef.ID, nil
}

// SetReferenceImageURL records the public URL of an uploaded reference
// image on a storybook document.
func (s *StorybookStore) SetReferenceImageURL(ctx context.Context, storybookID, url string) error {
	return s.updateField(ctx, storybookID, "referenceImageUrl", url)
}

// SetAudioURL records the public URL of generated narration audio on a
// storybook document.
func (s *StorybookStore) SetAudioURL(ctx context.Context, storybookID, url string) error {
	return s.updateField(ctx, storybookID, "audioUrl", url)
}

func (s *StorybookStore) updateField(ctx context.Context, storybookID, field, value string) error {
	updates := []firestore.Update{
		{Path: field, Value: value},
		{Path: "updatedAt", Value: time.Now()},
	}
	if _, err := s.client.Collection(s.collection).Doc(storybookID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update storybook %s: %w", storybookID, err)
	}
	return nil
}
