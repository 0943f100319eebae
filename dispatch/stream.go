package dispatch

import (
	"fmt"
	"iter"
	"strings"

	"charm.land/fantasy"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// streamAccumulator folds fantasy stream parts into one genai.Content.
type streamAccumulator struct {
	content *genai.Content
	current *genai.Part
	inputs  map[string]*strings.Builder
	calls   map[string]*genai.Part
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{
		content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{}},
		inputs:  make(map[string]*strings.Builder),
		calls:   make(map[string]*genai.Part),
	}
}

func (s *streamAccumulator) start(p *genai.Part) {
	s.current = p
	s.content.Parts = append(s.content.Parts, p)
}

// finishCall parses the accumulated input of tool call id into its Args.
func (s *streamAccumulator) finishCall(id string) error {
	builder, ok := s.inputs[id]
	if !ok {
		return nil
	}
	delete(s.inputs, id)
	part := s.calls[id]
	delete(s.calls, id)

	args, err := toolInput(builder.String())
	if part != nil {
		part.FunctionCall.Args = args
	}
	return err
}

// streamToLLM converts a fantasy stream to an ADK response iterator.
//
// Yields:
//   - TextDelta: the content so far with Partial:true
//   - Finish: the complete content with usage and FinishReason
//   - Error: ErrorCodeGeneric with the stream error
//   - tool input that cannot be parsed: ErrorCodeUnmarshal with the parse error
//
// Reasoning and tool input are accumulated silently.
func streamToLLM(stream fantasy.StreamResponse) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		acc := newStreamAccumulator()

		for part := range stream {
			switch part.Type {
			case fantasy.StreamPartTypeError:
				resp := &model.LLMResponse{TurnComplete: true, FinishReason: genai.FinishReasonOther}
				if part.Error != nil {
					resp.ErrorCode = ErrorCodeGeneric
					resp.ErrorMessage = part.Error.Error()
				}
				if !yield(resp, part.Error) {
					return
				}

			case fantasy.StreamPartTypeTextStart:
				acc.start(&genai.Part{})

			case fantasy.StreamPartTypeTextDelta:
				if acc.current == nil {
					continue
				}
				acc.current.Text += part.Delta
				if !yield(&model.LLMResponse{Content: acc.content, Partial: true}, nil) {
					return
				}

			case fantasy.StreamPartTypeReasoningStart:
				acc.start(&genai.Part{Thought: true})

			case fantasy.StreamPartTypeReasoningDelta:
				if acc.current != nil {
					acc.current.Text += part.Delta
				}

			case fantasy.StreamPartTypeTextEnd, fantasy.StreamPartTypeReasoningEnd:
				acc.current = nil

			case fantasy.StreamPartTypeToolInputStart:
				p := &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   part.ID,
					Name: part.ToolCallName,
					Args: map[string]any{},
				}}
				acc.start(p)
				acc.inputs[part.ID] = &strings.Builder{}
				acc.calls[part.ID] = p

			case fantasy.StreamPartTypeToolInputDelta:
				if b, ok := acc.inputs[part.ID]; ok {
					b.WriteString(part.ToolCallInput)
				}

			case fantasy.StreamPartTypeToolInputEnd, fantasy.StreamPartTypeToolCall:
				acc.current = nil
				if err := acc.finishCall(part.ID); err != nil {
					if !yield(&model.LLMResponse{
						TurnComplete: true,
						ErrorCode:    ErrorCodeUnmarshal,
						ErrorMessage: fmt.Sprintf("failed to unmarshal tool input: %v", err),
						FinishReason: genai.FinishReasonOther,
					}, err) {
						return
					}
				}

			case fantasy.StreamPartTypeFinish:
				if !yield(&model.LLMResponse{
					Content:       acc.content,
					UsageMetadata: usageMetadata(part.Usage),
					TurnComplete:  true,
					FinishReason:  finishReason(part.FinishReason),
				}, nil) {
					return
				}
			}
		}
	}
}
