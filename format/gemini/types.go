// Package gemini reads and writes Gemini generateContent request documents.
//
// Documents are decoded straight into google.golang.org/genai types, so the
// same conversion code serves JSON files and in-process genai values (see
// Importer.FromGenai). Function calls without an id get a synthesized one;
// function responses without an id are matched to the oldest unanswered call
// of the same name.
package gemini

import "google.golang.org/genai"

const formatName = "gemini"

// Request is the subset of a generateContent request body the converter
// reads and writes.
type Request struct {
	Contents          []*genai.Content `json:"contents"`
	SystemInstruction *genai.Content   `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool    `json:"tools,omitempty"`
}

// Function response envelope keys.
const (
	responseResult = "result"
	responseOutput = "output"
	responseError  = "error"
)
