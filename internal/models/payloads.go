package models

// These structs define the JSON payloads for HTTP requests and responses
// between the StoryTime web client and the backend Cloud Functions.

// ImageGeneratorRequest is the input for the storybook-image-generator function.
type ImageGeneratorRequest struct {
	StorybookID       string `json:"storybook_id"`
	ReferenceImageURL string `json:"reference_image_url"`
}

// ImageGeneratorResponse is the output of the storybook-image-generator
// function. It reports that the run finished, not that every page
// succeeded; per-page outcomes live on the page records themselves.
type ImageGeneratorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StoryGeneratorRequest is the input for the story-generator function,
// carrying the parameters collected by the story creation wizard.
type StoryGeneratorRequest struct {
	ChildName              string `json:"child_name"`
	AgeRange               string `json:"age_range"`
	Theme                  string `json:"theme"`
	Characters             string `json:"characters,omitempty"`
	LengthMinutes          int    `json:"length_minutes,omitempty"`
	EducationalFocus       string `json:"educational_focus,omitempty"`
	AdditionalInstructions string `json:"additional_instructions,omitempty"`
}

// StoryGeneratorResponse is the output of the story-generator function.
type StoryGeneratorResponse struct {
	Success     bool   `json:"success"`
	StorybookID string `json:"storybook_id"`
	Title       string `json:"title"`
	PageCount   int    `json:"page_count"`
}

// NarrationRequest is the input for the narration-tts function.
type NarrationRequest struct {
	Text        string `json:"text"`
	VoiceID     string `json:"voice_id"`
	StorybookID string `json:"storybook_id,omitempty"`
}

// NarrationResponse is the output of the narration-tts function.
type NarrationResponse struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"audio_url"`
}

// Voice describes one narration voice offered by the TTS provider.
type Voice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// VoiceListResponse is the output of the voice-list function.
type VoiceListResponse struct {
	Voices []Voice `json:"voices"`
}

// ErrorResponse is the error envelope shared by all HTTP functions.
type ErrorResponse struct {
	Error string `json:"error"`
}
