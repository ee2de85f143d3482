// Package prompt turns raw page text into bounded scene summaries and
// full image generation prompts.
package prompt

import (
	"regexp"
	"strings"
)

// DefaultMaxLength is the character budget for a scene summary.
const DefaultMaxLength = 50

// FallbackSummary is returned when the page text is empty or cleans down
// to nothing.
const FallbackSummary = "A scene from the story"

const stylePreamble = "Children's storybook illustration, whimsical and bright style. Scene showing: "

var (
	markupReplacer = strings.NewReplacer("*", "", "_", "", "`", "")
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// Summarize condenses page text into a short scene description of at most
// maxLength characters. Markup punctuation is stripped, whitespace runs
// are collapsed, and the text is cut to roughly maxLength/5 words (never
// more than 15). A trailing ellipsis marks dropped words; in that branch
// the result may exceed maxLength by the width of the ellipsis.
func Summarize(text string, maxLength int) string {
	if text == "" {
		return FallbackSummary
	}

	cleaned := strings.TrimSpace(whitespaceRuns.ReplaceAllString(markupReplacer.Replace(text), " "))
	if cleaned == "" {
		return FallbackSummary
	}

	words := strings.Split(cleaned, " ")
	maxWords := maxLength / 5
	if maxWords > 15 {
		maxWords = 15
	}

	keep := maxWords
	if keep > len(words) {
		keep = len(words)
	}
	if keep < 0 {
		keep = 0
	}
	summary := strings.Join(words[:keep], " ")

	if runes := []rune(summary); len(runes) > maxLength {
		summary = string(runes[:maxLength-3]) + "..."
	} else if len(words) > maxWords {
		summary += "..."
	}

	if summary == "" {
		return FallbackSummary
	}
	return summary
}

// BuildPrompt wraps a scene summary in the fixed illustration style
// preamble. Deterministic, no side effects.
func BuildPrompt(summary string) string {
	return stylePreamble + summary
}
