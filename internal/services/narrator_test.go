package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/storytimeapp/storytime-functions/internal/models"
)

type fakeTTS struct {
	audio []byte
	err   error
	texts []string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

type fakeAudioRecorder struct {
	recorded map[string]string
	err      error
}

func (r *fakeAudioRecorder) SetAudioURL(ctx context.Context, storybookID, url string) error {
	if r.err != nil {
		return r.err
	}
	if r.recorded == nil {
		r.recorded = make(map[string]string)
	}
	r.recorded[storybookID] = url
	return nil
}

func newTestNarrator(tts TTSProvider, objects ObjectStore, recorder AudioRecorder) *NarratorFunction {
	return &NarratorFunction{tts: tts, objects: objects, storybooks: recorder}
}

func TestNarratorStoresAudioAndRecordsURL(t *testing.T) {
	objects := newFakeObjectStore()
	recorder := &fakeAudioRecorder{}
	f := newTestNarrator(&fakeTTS{audio: []byte("mp3")}, objects, recorder)

	resp, err := f.Process(context.Background(), &models.NarrationRequest{
		Text:        "Once upon a time",
		VoiceID:     "v1",
		StorybookID: "sb1",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !resp.Success || resp.AudioURL == "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if _, ok := objects.uploads["audio/sb1/narration.mp3"]; !ok {
		t.Errorf("audio not stored at deterministic path, uploads: %v", objects.uploads)
	}
	if objects.contentTypes["audio/sb1/narration.mp3"] != audioContentType {
		t.Errorf("unexpected content type %q", objects.contentTypes["audio/sb1/narration.mp3"])
	}
	if recorder.recorded["sb1"] != resp.AudioURL {
		t.Errorf("audio URL not recorded on storybook: %v", recorder.recorded)
	}
}

func TestNarratorAnonymousRequestSkipsRecording(t *testing.T) {
	objects := newFakeObjectStore()
	recorder := &fakeAudioRecorder{}
	f := newTestNarrator(&fakeTTS{audio: []byte("mp3")}, objects, recorder)

	resp, err := f.Process(context.Background(), &models.NarrationRequest{Text: "hi", VoiceID: "v1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(recorder.recorded) != 0 {
		t.Errorf("anonymous narration must not touch the storybook store: %v", recorder.recorded)
	}
	if !strings.Contains(resp.AudioURL, "audio/anonymous/") {
		t.Errorf("anonymous audio URL %q not under the anonymous prefix", resp.AudioURL)
	}
}

func TestNarratorValidatesParams(t *testing.T) {
	f := newTestNarrator(&fakeTTS{}, newFakeObjectStore(), &fakeAudioRecorder{})

	for _, req := range []*models.NarrationRequest{
		{VoiceID: "v1"},
		{Text: "hello"},
		{},
	} {
		if _, err := f.Process(context.Background(), req); !errors.Is(err, ErrMissingNarrationParams) {
			t.Errorf("req %+v: error %v, want ErrMissingNarrationParams", req, err)
		}
	}
}

func TestNarratorTTSFailureIsFatal(t *testing.T) {
	objects := newFakeObjectStore()
	f := newTestNarrator(&fakeTTS{err: errors.New("quota exceeded")}, objects, &fakeAudioRecorder{})

	if _, err := f.Process(context.Background(), &models.NarrationRequest{Text: "x", VoiceID: "v"}); err == nil {
		t.Fatal("expected error when synthesis fails")
	}
	if len(objects.uploads) != 0 {
		t.Errorf("nothing should be uploaded after a synthesis failure: %v", objects.uploads)
	}
}

func TestNarratorRecordFailureDoesNotFailRequest(t *testing.T) {
	f := newTestNarrator(&fakeTTS{audio: []byte("mp3")}, newFakeObjectStore(), &fakeAudioRecorder{err: errors.New("doc missing")})

	resp, err := f.Process(context.Background(), &models.NarrationRequest{Text: "x", VoiceID: "v", StorybookID: "sb1"})
	if err != nil {
		t.Fatalf("record failure must not fail the request: %v", err)
	}
	if !resp.Success || resp.AudioURL == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}
