package generator

import (
	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// Wire types for the generateContent endpoint.

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType"`
	ResponseSchema   any     `json:"responseSchema"`
	Temperature      float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// text extracts the single generated text part or classifies the response as
// malformed. Empty candidate lists occur on safety blocks and overload.
func (r *geminiResponse) text() (string, error) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", ferrors.ModelError("model response carries no candidates").Retryable().Build()
	}
	return r.Candidates[0].Content.Parts[0].Text, nil
}

// filesSchema constrains the model to a files array of path/content pairs.
var filesSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"files": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"path":    map[string]any{"type": "STRING"},
					"content": map[string]any{"type": "STRING"},
				},
				"required": []string{"path", "content"},
			},
		},
	},
	"required": []string{"files"},
}
