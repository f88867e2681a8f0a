package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClassifier calls the Gemini API to classify one user's slice per
// request. It is the only component that talks to the classification
// backend.
type GeminiClassifier struct {
	apiKey string
	model  string
}

// NewGeminiClassifier creates a classifier for the given API key and model
// name.
func NewGeminiClassifier(apiKey, model string) *GeminiClassifier {
	return &GeminiClassifier{
		apiKey: apiKey,
		model:  model,
	}
}

// Classify sends one classification request and defensively parses the
// response. Transport-level failures come back as a *BackendError;
// unparseable response bodies come back as a *ResponseParseError scoped to
// the request's user.
func (c *GeminiClassifier) Classify(ctx context.Context, req ClassifyRequest) ([]Classification, error) {
	prompt := buildClassifyPrompt(req)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      c.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, wrapBackendError(fmt.Errorf("create genai client: %w", err))
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, wrapBackendError(err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, &ResponseParseError{
			UserID: req.UserID,
			Raw:    rawText,
			Err:    fmt.Errorf("empty response from model"),
		}
	}

	return parseClassifications(req.UserID, rawText)
}

// parseClassifications reads the model output as a JSON array of
// classifications, stripping Markdown fences first if the model ignored the
// no-fences instruction.
func parseClassifications(userID, rawText string) ([]Classification, error) {
	clean := cleanModelJSON(rawText)

	var out []Classification
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, &ResponseParseError{
			UserID: userID,
			Raw:    rawText,
			Err:    err,
		}
	}

	return out, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			// Single-line weirdness; just return as-is.
			return s
		}
		s = strings.TrimSpace(s)

		// Remove trailing ``` if present.
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Extra safety: if there's still junk around the JSON array,
	// keep only from the first '[' to the last ']'.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
