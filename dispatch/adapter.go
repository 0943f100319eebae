// Package dispatch is the boundary between converted request documents and
// the models that answer them.
//
// It turns a Gemini-format document into an ADK model.LLMRequest, runs it
// against any model.LLM, and records the response in the shape the
// comparison tooling reads. It also provides Adapter, which puts any fantasy
// provider (Anthropic, OpenAI, Google, Azure, etc.) behind model.LLM, with the
// canonical Conversation as the bridge.
//
// # Key Conversions
//
// ADK -> Fantasy (through ir.Conversation):
//   - LLMRequest.Contents, Config.SystemInstruction, Config.Tools -> Conversation (gemini importer)
//   - Conversation -> fantasy.Call prompt and tools (FantasyCall)
//   - Config (Temperature, TopP, TopK, MaxOutputTokens, penalties) -> fantasy.Call parameters
//   - Config.ToolConfig.FunctionCallingConfig -> fantasy.Call.ToolChoice
//
// Fantasy -> ADK:
//   - fantasy.TextContent -> genai.Part{Text}
//   - fantasy.ToolCallContent -> genai.Part{FunctionCall}
//   - fantasy.ReasoningContent -> genai.Part{Text, Thought:true}
//   - fantasy.Usage -> LLMResponse.UsageMetadata
//   - fantasy.FinishReason -> genai.FinishReason (see finishReason)
//
// Nothing in this package opens a network connection by itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"charm.land/fantasy"
	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/robbyt/fantasy-adapters/reqconv/format"
	"github.com/robbyt/fantasy-adapters/reqconv/format/gemini"
)

const (
	ErrorCodeGeneric   = "ERROR"
	ErrorCodeUnmarshal = "UNMARSHAL_ERROR"

	ToolModeAuto      = "AUTO"
	ToolModeAny       = "ANY"
	ToolModeNone      = "NONE"
	ToolModeValidated = "VALIDATED"
)

// Adapter wraps a fantasy.LanguageModel to implement model.LLM.
type Adapter struct {
	model    fantasy.LanguageModel
	importer *gemini.Importer
	logger   *slog.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithAdapterLogger sets the logger. The default is slog.Default().
func WithAdapterLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter creates an ADK model for the given fantasy language model.
func NewAdapter(m fantasy.LanguageModel, opts ...AdapterOption) model.LLM {
	a := &Adapter{
		model:    m,
		importer: gemini.NewImporter(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements model.LLM.
func (a *Adapter) Name() string {
	return fmt.Sprintf("%s/%s", a.model.Provider(), a.model.Model())
}

// GenerateContent implements model.LLM.
//
// A request that cannot be converted yields a single error. Otherwise the
// non-streaming form yields one complete response, and the streaming form
// yields partial text responses followed by a final one carrying usage and
// FinishReason.
func (a *Adapter) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	call, err := a.requestToCall(req)
	if err != nil {
		return single(nil, err)
	}

	if stream {
		s, err := a.model.Stream(ctx, call)
		if err != nil {
			return single(nil, err)
		}
		return streamToLLM(s)
	}

	resp, err := a.model.Generate(ctx, call)
	if err != nil {
		return single(nil, err)
	}
	return single(responseToLLM(resp), nil)
}

func single(resp *model.LLMResponse, err error) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		yield(resp, err)
	}
}

// requestToCall converts an ADK request into a fantasy.Call by importing it
// as a Conversation and applying the generation settings of req.Config.
//
// Thought parts are dropped before import; they are the model's own
// reasoning and have no canonical form.
//
// Returns errors for unsupported ADK features:
//   - SafetySettings, ResponseMIMEType, ResponseSchema
//   - ThinkingConfig (use provider-specific options instead)
//   - CachedContent
//   - AllowedFunctionNames naming an undeclared function
func (a *Adapter) requestToCall(req *model.LLMRequest) (fantasy.Call, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = &genai.GenerateContentConfig{}
	}

	conv, warnings, err := a.importer.FromGenai(cfg.SystemInstruction, withoutThoughts(req.Contents), cfg.Tools)
	if err != nil {
		return fantasy.Call{}, err
	}
	for _, w := range warnings {
		a.logger.Debug("request conversion warning", "model", a.Name(), "path", w.Path, "message", w.Message)
	}

	call, err := FantasyCall(conv)
	if err != nil {
		return fantasy.Call{}, err
	}

	errs := applyGenerationConfig(&call, cfg)
	if cfg.ToolConfig != nil && cfg.ToolConfig.FunctionCallingConfig != nil {
		errs = append(errs, applyFunctionCalling(&call, cfg.ToolConfig.FunctionCallingConfig)...)
	}
	return call, errors.Join(errs...)
}

func withoutThoughts(contents []*genai.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		if c == nil {
			out = append(out, c)
			continue
		}
		parts := slices.DeleteFunc(slices.Clone(c.Parts), func(p *genai.Part) bool {
			return p != nil && p.Thought
		})
		if len(c.Parts) > 0 && len(parts) == 0 {
			continue
		}
		out = append(out, &genai.Content{Role: c.Role, Parts: parts})
	}
	return out
}

func applyGenerationConfig(call *fantasy.Call, cfg *genai.GenerateContentConfig) []error {
	var errs []error

	if cfg.Temperature != nil {
		call.Temperature = genai.Ptr(float64(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		call.TopP = genai.Ptr(float64(*cfg.TopP))
	}
	if cfg.TopK != nil {
		call.TopK = genai.Ptr(int64(*cfg.TopK))
	}
	if cfg.MaxOutputTokens > 0 {
		call.MaxOutputTokens = genai.Ptr(int64(cfg.MaxOutputTokens))
	}
	if cfg.PresencePenalty != nil {
		call.PresencePenalty = genai.Ptr(float64(*cfg.PresencePenalty))
	}
	if cfg.FrequencyPenalty != nil {
		call.FrequencyPenalty = genai.Ptr(float64(*cfg.FrequencyPenalty))
	}

	if len(cfg.SafetySettings) > 0 {
		errs = append(errs, errors.New("safety settings not supported"))
	}
	if cfg.ResponseMIMEType != "" {
		errs = append(errs, errors.New("response MIME type not supported"))
	}
	if cfg.ResponseSchema != nil || cfg.ResponseJsonSchema != nil {
		errs = append(errs, errors.New("response schema not supported"))
	}
	if cfg.ThinkingConfig != nil {
		errs = append(errs, errors.New("thinking config not supported (use provider-specific options)"))
	}
	if cfg.CachedContent != "" {
		errs = append(errs, errors.New("cached content not supported"))
	}
	return errs
}

// applyFunctionCalling maps the function calling mode to a tool choice and
// narrows the tools to AllowedFunctionNames. A single allowed function is
// forced unless the mode is NONE.
func applyFunctionCalling(call *fantasy.Call, fc *genai.FunctionCallingConfig) []error {
	var errs []error

	if len(fc.AllowedFunctionNames) > 0 {
		declared := make(map[string]bool, len(call.Tools))
		for _, tool := range call.Tools {
			if ft, ok := tool.(fantasy.FunctionTool); ok {
				declared[ft.Name] = true
			}
		}
		for _, name := range fc.AllowedFunctionNames {
			if !declared[name] {
				errs = append(errs, fmt.Errorf("allowed function %q not found in tools list", name))
			}
		}
		call.Tools = slices.DeleteFunc(call.Tools, func(tool fantasy.Tool) bool {
			ft, ok := tool.(fantasy.FunctionTool)
			return !ok || !slices.Contains(fc.AllowedFunctionNames, ft.Name)
		})
	}

	switch fc.Mode {
	case ToolModeAuto:
		call.ToolChoice = genai.Ptr(fantasy.ToolChoiceAuto)
	case ToolModeAny:
		call.ToolChoice = genai.Ptr(fantasy.ToolChoiceRequired)
	case ToolModeNone:
		call.ToolChoice = genai.Ptr(fantasy.ToolChoiceNone)
	case ToolModeValidated:
		errs = append(errs, errors.New("validated tool mode not supported"))
	case "":
	default:
		errs = append(errs, fmt.Errorf("unsupported tool calling mode: %q", fc.Mode))
	}

	if len(fc.AllowedFunctionNames) == 1 && fc.Mode != ToolModeNone {
		call.ToolChoice = genai.Ptr(fantasy.ToolChoice(fc.AllowedFunctionNames[0]))
	}
	return errs
}

// responseToLLM converts a complete fantasy.Response.
//
// Tool call input that is not a JSON object is repaired when possible; input
// that cannot be repaired sets ErrorCodeUnmarshal and leaves Args empty.
func responseToLLM(resp *fantasy.Response) *model.LLMResponse {
	out := &model.LLMResponse{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: make([]*genai.Part, 0, len(resp.Content)),
		},
		UsageMetadata: usageMetadata(resp.Usage),
		TurnComplete:  true,
		FinishReason:  finishReason(resp.FinishReason),
	}

	for _, content := range resp.Content {
		switch c := content.(type) {
		case fantasy.TextContent:
			out.Content.Parts = append(out.Content.Parts, &genai.Part{Text: c.Text})
		case fantasy.ToolCallContent:
			args, err := toolInput(c.Input)
			if err != nil {
				out.ErrorCode = ErrorCodeUnmarshal
				out.ErrorMessage = fmt.Sprintf("failed to unmarshal tool call input: %v", err)
			}
			out.Content.Parts = append(out.Content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   c.ToolCallID,
				Name: c.ToolName,
				Args: args,
			}})
		case fantasy.ReasoningContent:
			out.Content.Parts = append(out.Content.Parts, &genai.Part{Text: c.Text, Thought: true})
		}
	}
	return out
}

func toolInput(input string) (map[string]any, error) {
	if input == "" {
		return map[string]any{}, nil
	}
	args, err := format.DecodeObject([]byte(input))
	if err == nil {
		return args, nil
	}
	repaired, rerr := jsonrepair.RepairJSON(input)
	if rerr != nil {
		return map[string]any{}, err
	}
	args, rerr = format.DecodeObject([]byte(repaired))
	if rerr != nil {
		return map[string]any{}, err
	}
	return args, nil
}

func usageMetadata(u fantasy.Usage) *genai.GenerateContentResponseUsageMetadata {
	return &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:        int32(u.InputTokens),
		CandidatesTokenCount:    int32(u.OutputTokens),
		TotalTokenCount:         int32(u.TotalTokens),
		CachedContentTokenCount: int32(u.CacheReadTokens),
	}
}

// finishReason maps fantasy finish reasons to genai finish reasons.
//
// Mapping:
//   - stop, tool-calls -> STOP
//   - length -> MAX_TOKENS
//   - content-filter -> SAFETY
//   - error -> OTHER
//   - other/unknown -> FINISH_REASON_UNSPECIFIED
func finishReason(reason fantasy.FinishReason) genai.FinishReason {
	switch reason {
	case fantasy.FinishReasonStop, fantasy.FinishReasonToolCalls:
		return genai.FinishReasonStop
	case fantasy.FinishReasonLength:
		return genai.FinishReasonMaxTokens
	case fantasy.FinishReasonContentFilter:
		return genai.FinishReasonSafety
	case fantasy.FinishReasonError:
		return genai.FinishReasonOther
	default:
		return genai.FinishReasonUnspecified
	}
}
