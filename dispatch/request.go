package dispatch

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/robbyt/fantasy-adapters/reqconv/format/gemini"
	"github.com/robbyt/fantasy-adapters/reqconv/ir"
	"github.com/robbyt/fantasy-adapters/reqconv/validate"
)

// ErrNoResponse is returned by Call when the model yields nothing.
var ErrNoResponse = errors.New("model returned no response")

// ResponseError reports an error carried inside an LLMResponse.
type ResponseError struct {
	Code    string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("model response error %s: %s", e.Code, e.Message)
}

// Record is one model answer in the shape the comparison tooling reads.
type Record struct {
	Model        string                                      `json:"model"`
	Response     Response                                    `json:"response"`
	FinishReason genai.FinishReason                          `json:"finish_reason,omitempty"`
	Usage        *genai.GenerateContentResponseUsageMetadata `json:"usage,omitempty"`
}

// Response wraps the content of a model answer.
type Response struct {
	Content *genai.Content `json:"content"`
}

// FunctionCalls returns the function calls of the recorded answer in order.
func (r *Record) FunctionCalls() []*genai.FunctionCall {
	if r.Response.Content == nil {
		return nil
	}
	var calls []*genai.FunctionCall
	for _, p := range r.Response.Content.Parts {
		if p != nil && p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
		}
	}
	return calls
}

// Request parses a Gemini generateContent document into an LLMRequest.
// The document goes through the same import and validation as a conversion.
func Request(doc []byte) (*model.LLMRequest, error) {
	conv, _, err := gemini.NewImporter().Import(doc)
	if err != nil {
		return nil, err
	}
	req, _, err := FromConversation(conv)
	return req, err
}

// FromConversation builds an LLMRequest from a validated Conversation.
func FromConversation(c *ir.Conversation) (*model.LLMRequest, ir.Warnings, error) {
	if err := validate.Conversation(c, validate.WithSchemaChecks(false)).Err(); err != nil {
		return nil, nil, err
	}
	g, warnings, err := gemini.NewExporter().ToGenai(c)
	if err != nil {
		return nil, nil, err
	}
	return &model.LLMRequest{
		Contents: g.Contents,
		Config: &genai.GenerateContentConfig{
			SystemInstruction: g.SystemInstruction,
			Tools:             g.Tools,
		},
	}, warnings, nil
}

// Call runs req against llm without streaming and records the final response.
func Call(ctx context.Context, llm model.LLM, req *model.LLMRequest) (*Record, error) {
	var last *model.LLMResponse
	for resp, err := range llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return nil, fmt.Errorf("generate content: %w", err)
		}
		last = resp
	}
	if last == nil {
		return nil, ErrNoResponse
	}
	if last.ErrorCode != "" {
		return nil, &ResponseError{Code: last.ErrorCode, Message: last.ErrorMessage}
	}

	name := req.Model
	if name == "" {
		name = llm.Name()
	}
	return &Record{
		Model:        name,
		Response:     Response{Content: last.Content},
		FinishReason: last.FinishReason,
		Usage:        last.UsageMetadata,
	}, nil
}
