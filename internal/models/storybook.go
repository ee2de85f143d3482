package models

import "time"

// Image generation states for a storybook page. A page starts out
// "pending" when it is created and moves through "generating" to either
// "completed" or "failed" during an image generation run. A later run may
// reset a terminal state back to "generating".
const (
	ImageStatusPending    = "pending"
	ImageStatusGenerating = "generating"
	ImageStatusCompleted  = "completed"
	ImageStatusFailed     = "failed"
)

// Storybook is the parent record for a generated story in Firestore.
type Storybook struct {
	Title             string    `firestore:"title,omitempty"`
	ChildName         string    `firestore:"childName,omitempty"`
	Theme             string    `firestore:"theme,omitempty"`
	Status            string    `firestore:"status,omitempty"`
	ReferenceImageURL string    `firestore:"referenceImageUrl,omitempty"`
	AudioURL          string    `firestore:"audioUrl,omitempty"`
	CreatedAt         time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt         time.Time `firestore:"updatedAt,omitempty"`
}

// Page is one unit of story text plus its generated illustration state.
// Pages belong to a storybook and are processed in pageNumber order.
type Page struct {
	ID          string    `firestore:"-"`
	StorybookID string    `firestore:"storybookId,omitempty"`
	PageNumber  int       `firestore:"pageNumber"`
	Text        string    `firestore:"text,omitempty"`
	ImagePrompt string    `firestore:"imagePrompt,omitempty"`
	ImageStatus string    `firestore:"imageStatus,omitempty"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	UpdatedAt   time.Time `firestore:"updatedAt,omitempty"`
}

// PageUpdate describes a partial update to a page. Nil fields are left
// untouched; the store refreshes updatedAt on every write.
type PageUpdate struct {
	ImageStatus *string
	ImagePrompt *string
	ImageURL    *string
}

// String returns a pointer to s, for building PageUpdate values inline.
func String(s string) *string {
	return &s
}
