package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/storytimeapp/storytime-functions/internal/fal"
	"github.com/storytimeapp/storytime-functions/internal/models"
	"github.com/storytimeapp/storytime-functions/internal/prompt"
)

type pageWrite struct {
	pageID string
	upd    models.PageUpdate
}

type fakePageStore struct {
	pages   []models.Page
	listErr error
	writes  []pageWrite
}

func (s *fakePageStore) ListByStorybook(ctx context.Context, storybookID string) ([]models.Page, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.pages, nil
}

func (s *fakePageStore) UpdatePage(ctx context.Context, pageID string, upd models.PageUpdate) error {
	s.writes = append(s.writes, pageWrite{pageID: pageID, upd: upd})
	return nil
}

// finalStatus replays the recorded writes for a page and returns the last
// committed status and URL, mirroring what Firestore would hold.
func (s *fakePageStore) finalStatus(pageID string) (status, url string) {
	for _, w := range s.writes {
		if w.pageID != pageID {
			continue
		}
		if w.upd.ImageStatus != nil {
			status = *w.upd.ImageStatus
		}
		if w.upd.ImageURL != nil {
			url = *w.upd.ImageURL
		}
	}
	return status, url
}

func (s *fakePageStore) lastPrompt(pageID string) string {
	var p string
	for _, w := range s.writes {
		if w.pageID == pageID && w.upd.ImagePrompt != nil {
			p = *w.upd.ImagePrompt
		}
	}
	return p
}

type fakeObjectStore struct {
	uploads      map[string][]byte
	contentTypes map[string]string
	uploadErr    error
	noPublicURL  bool
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		uploads:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (s *fakeObjectStore) Upload(ctx context.Context, objectName, contentType string, data []byte) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads[objectName] = data
	s.contentTypes[objectName] = contentType
	return nil
}

func (s *fakeObjectStore) PublicURL(objectName string) string {
	if s.noPublicURL {
		return ""
	}
	return "https://storage.example.com/assets/" + objectName
}

type fakeProvider struct {
	calls    []string // prompts in call order
	generate func(call int) (*fal.Image, error)
}

func (p *fakeProvider) Generate(ctx context.Context, referenceImageURL, imagePrompt string) (*fal.Image, error) {
	call := len(p.calls)
	p.calls = append(p.calls, imagePrompt)
	if p.generate != nil {
		return p.generate(call)
	}
	return &fal.Image{
		Content:     base64.StdEncoding.EncodeToString([]byte("img")),
		ContentType: "image/png",
	}, nil
}

func threePages() []models.Page {
	return []models.Page{
		{ID: "p1", StorybookID: "sb1", PageNumber: 1, Text: "The fox woke up early."},
		{ID: "p2", StorybookID: "sb1", PageNumber: 2, Text: "The fox found a map."},
		{ID: "p3", StorybookID: "sb1", PageNumber: 3, Text: "The fox sailed home."},
	}
}

func validRequest() *models.ImageGeneratorRequest {
	return &models.ImageGeneratorRequest{
		StorybookID:       "sb1",
		ReferenceImageURL: "https://example.com/ref.png",
	}
}

func TestProcessAllPagesSucceed(t *testing.T) {
	pages := &fakePageStore{pages: threePages()}
	objects := newFakeObjectStore()
	provider := &fakeProvider{}
	f := newImageGenerator(pages, objects, provider)

	resp, err := f.Process(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !resp.Success {
		t.Error("expected success envelope")
	}
	if !strings.Contains(resp.Message, "3 pages") {
		t.Errorf("message %q does not report the page count", resp.Message)
	}

	urls := make(map[string]bool)
	for i, page := range threePages() {
		status, url := pages.finalStatus(page.ID)
		if status != models.ImageStatusCompleted {
			t.Errorf("page %s: status %q, want completed", page.ID, status)
		}
		if !strings.Contains(url, fmt.Sprintf("page_%d", i+1)) {
			t.Errorf("page %s: URL %q does not embed its page number", page.ID, url)
		}
		urls[url] = true
	}
	if len(urls) != 3 {
		t.Errorf("expected 3 distinct image URLs, got %d", len(urls))
	}
}

func TestProcessPagesVisitedInOrder(t *testing.T) {
	pages := &fakePageStore{pages: threePages()}
	provider := &fakeProvider{}
	f := newImageGenerator(pages, newFakeObjectStore(), provider)

	if _, err := f.Process(context.Background(), validRequest()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(provider.calls) != 3 {
		t.Fatalf("expected 3 provider calls, got %d", len(provider.calls))
	}
	for i, want := range []string{"fox woke up", "fox found a map", "fox sailed home"} {
		if !strings.Contains(provider.calls[i], want) {
			t.Errorf("call %d prompt %q, want it to mention %q", i, provider.calls[i], want)
		}
	}
}

func TestProcessStatusSequencePerPage(t *testing.T) {
	pages := &fakePageStore{pages: threePages()[:1]}
	f := newImageGenerator(pages, newFakeObjectStore(), &fakeProvider{})

	if _, err := f.Process(context.Background(), validRequest()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	var statuses []string
	var completedCarriesURL bool
	for _, w := range pages.writes {
		if w.upd.ImageStatus != nil {
			statuses = append(statuses, *w.upd.ImageStatus)
			if *w.upd.ImageStatus == models.ImageStatusCompleted && w.upd.ImageURL != nil {
				completedCarriesURL = true
			}
		}
	}
	want := []string{models.ImageStatusGenerating, models.ImageStatusCompleted}
	if len(statuses) != len(want) || statuses[0] != want[0] || statuses[1] != want[1] {
		t.Errorf("status writes %v, want %v", statuses, want)
	}
	if !completedCarriesURL {
		t.Error("completed status write must carry the image URL")
	}
}

func TestProcessContainsMiddlePageFailure(t *testing.T) {
	pages := &fakePageStore{pages: threePages()}
	provider := &fakeProvider{
		generate: func(call int) (*fal.Image, error) {
			if call == 1 {
				return nil, errors.New("fal: API error (500): boom")
			}
			return &fal.Image{Content: base64.StdEncoding.EncodeToString([]byte("img"))}, nil
		},
	}
	f := newImageGenerator(pages, newFakeObjectStore(), provider)

	resp, err := f.Process(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("a page failure must not fail the run: %v", err)
	}
	if !resp.Success || !strings.Contains(resp.Message, "3 pages") {
		t.Errorf("expected success envelope over 3 pages, got %+v", resp)
	}

	wantStatus := map[string]string{
		"p1": models.ImageStatusCompleted,
		"p2": models.ImageStatusFailed,
		"p3": models.ImageStatusCompleted,
	}
	for pageID, want := range wantStatus {
		if status, _ := pages.finalStatus(pageID); status != want {
			t.Errorf("page %s: status %q, want %q", pageID, status, want)
		}
	}
	// A failed attempt must not commit a fresh URL.
	if _, url := pages.finalStatus("p2"); url != "" {
		t.Errorf("failed page carries URL %q from this attempt", url)
	}
}

func TestProcessFailedUploadContained(t *testing.T) {
	pages := &fakePageStore{pages: threePages()[:1]}
	objects := newFakeObjectStore()
	objects.uploadErr = errors.New("bucket unavailable")
	f := newImageGenerator(pages, objects, &fakeProvider{})

	if _, err := f.Process(context.Background(), validRequest()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if status, _ := pages.finalStatus("p1"); status != models.ImageStatusFailed {
		t.Errorf("status %q, want failed after upload error", status)
	}
}

func TestProcessBadPayloadContained(t *testing.T) {
	pages := &fakePageStore{pages: threePages()[:1]}
	provider := &fakeProvider{
		generate: func(int) (*fal.Image, error) {
			return &fal.Image{Content: "not-base64!!!"}, nil
		},
	}
	f := newImageGenerator(pages, newFakeObjectStore(), provider)

	if _, err := f.Process(context.Background(), validRequest()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if status, _ := pages.finalStatus("p1"); status != models.ImageStatusFailed {
		t.Errorf("status %q, want failed after decode error", status)
	}
}

func TestProcessMissingPublicURLContained(t *testing.T) {
	pages := &fakePageStore{pages: threePages()[:1]}
	objects := newFakeObjectStore()
	objects.noPublicURL = true
	f := newImageGenerator(pages, objects, &fakeProvider{})

	if _, err := f.Process(context.Background(), validRequest()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if status, _ := pages.finalStatus("p1"); status != models.ImageStatusFailed {
		t.Errorf("status %q, want failed when no public URL resolves", status)
	}
}

func TestProcessMissingParams(t *testing.T) {
	tests := []struct {
		name string
		req  *models.ImageGeneratorRequest
	}{
		{"missing storybook id", &models.ImageGeneratorRequest{ReferenceImageURL: "https://example.com/r.png"}},
		{"missing reference image", &models.ImageGeneratorRequest{StorybookID: "sb1"}},
		{"both missing", &models.ImageGeneratorRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := &fakePageStore{pages: threePages()}
			f := newImageGenerator(pages, newFakeObjectStore(), &fakeProvider{})

			if _, err := f.Process(context.Background(), tt.req); !errors.Is(err, ErrMissingParams) {
				t.Errorf("error %v, want ErrMissingParams", err)
			}
			if len(pages.writes) != 0 {
				t.Errorf("validation failure must not write to the page store, got %d writes", len(pages.writes))
			}
		})
	}
}

func TestProcessNoPages(t *testing.T) {
	pages := &fakePageStore{}
	f := newImageGenerator(pages, newFakeObjectStore(), &fakeProvider{})

	if _, err := f.Process(context.Background(), validRequest()); !errors.Is(err, ErrNoPages) {
		t.Errorf("error %v, want ErrNoPages", err)
	}
	if len(pages.writes) != 0 {
		t.Errorf("empty storybook must not write to the page store, got %d writes", len(pages.writes))
	}
}

func TestProcessFetchFailureIsFatal(t *testing.T) {
	pages := &fakePageStore{listErr: errors.New("firestore unavailable")}
	f := newImageGenerator(pages, newFakeObjectStore(), &fakeProvider{})

	if _, err := f.Process(context.Background(), validRequest()); err == nil {
		t.Error("expected error when the page fetch fails")
	}
}

func TestProcessReRunOverwritesCompletedPages(t *testing.T) {
	completed := threePages()[:1]
	completed[0].ImageStatus = models.ImageStatusCompleted
	completed[0].ImageURL = "https://storage.example.com/assets/images/sb1/page_1.png"
	completed[0].ImagePrompt = "stale prompt"

	pages := &fakePageStore{pages: completed}
	objects := newFakeObjectStore()
	f := newImageGenerator(pages, objects, &fakeProvider{})

	// Two consecutive runs against an already-completed page.
	for i := 0; i < 2; i++ {
		if _, err := f.Process(context.Background(), validRequest()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	if status, _ := pages.finalStatus("p1"); status != models.ImageStatusCompleted {
		t.Errorf("re-run status %q, want completed", status)
	}
	if got := pages.lastPrompt("p1"); got == "stale prompt" || got == "" {
		t.Errorf("re-run did not overwrite the stored prompt, got %q", got)
	}
	// Deterministic object path: both runs overwrite the same blob.
	if len(objects.uploads) != 1 {
		t.Errorf("expected a single object after two runs, got %d", len(objects.uploads))
	}
	if _, ok := objects.uploads["images/sb1/page_1.png"]; !ok {
		t.Errorf("unexpected object names: %v", objects.uploads)
	}
}

func TestProcessEmptyPageTextUsesFallbackPrompt(t *testing.T) {
	pages := &fakePageStore{pages: []models.Page{{ID: "p1", StorybookID: "sb1", PageNumber: 1}}}
	provider := &fakeProvider{}
	f := newImageGenerator(pages, newFakeObjectStore(), provider)

	if _, err := f.Process(context.Background(), validRequest()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(provider.calls[0], prompt.FallbackSummary) {
		t.Errorf("prompt %q does not use the fallback summary", provider.calls[0])
	}
}

func TestProcessDefaultsContentType(t *testing.T) {
	pages := &fakePageStore{pages: threePages()[:1]}
	objects := newFakeObjectStore()
	provider := &fakeProvider{
		generate: func(int) (*fal.Image, error) {
			return &fal.Image{Content: base64.StdEncoding.EncodeToString([]byte("img"))}, nil
		},
	}
	f := newImageGenerator(pages, objects, provider)

	if _, err := f.Process(context.Background(), validRequest()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := objects.contentTypes["images/sb1/page_1.png"]; got != defaultImageContentType {
		t.Errorf("content type %q, want default %q", got, defaultImageContentType)
	}
}
