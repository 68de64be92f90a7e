package enhance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

const (
	defaultOpenAIMaxTokens   = 512
	defaultOpenAITemperature = 0.1
)

const systemPrompt = `You turn fragments of a live meeting transcript into concise, attributed follow-up items.
Respond with a single JSON object and nothing else:
{"item_id": string, "enhanced_content": string, "owner": string, "priority": "low"|"medium"|"high", "suggested_due_date": string, "confidence": number between 0 and 1}
Rewrite the content as one short imperative or declarative sentence. Use an empty string for unknown owner or due date.
Prefer the provided hints unless the context clearly contradicts them. Echo item_id unchanged.`

// OpenAIProvider enhances through an OpenAI-compatible chat completion API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider for model. An empty baseURL uses the
// OpenAI API. The SDK's own retries are disabled.
func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the configured chat model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Enhance asks the model for a JSON object describing the item.
func (p *OpenAIProvider) Enhance(ctx context.Context, req *Request) (*Result, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(req)),
		},
		MaxCompletionTokens: openai.Int(defaultOpenAIMaxTokens),
		Temperature:         openai.Float(defaultOpenAITemperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, plerrors.StatusError(p.Name(), apiErr.StatusCode, apiErr.Message)
		}
		return nil, plerrors.ClassifyError(err, p.Name())
	}

	if len(resp.Choices) == 0 {
		return nil, plerrors.NewEnhanceError(plerrors.ErrParseError, p.Name(), "no choices in response", nil)
	}
	if resp.Choices[0].FinishReason == "length" {
		return nil, plerrors.NewEnhanceError(plerrors.ErrParseError, p.Name(), "response truncated at max tokens", nil)
	}

	return decodeResult(p.Name(), req, []byte(resp.Choices[0].Message.Content))
}

func buildPrompt(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "item_id: %s\n", req.ItemID)
	fmt.Fprintf(&b, "category: %s\n", req.Category.Label())
	fmt.Fprintf(&b, "fragment: %s\n", req.Content)
	if req.FullContext != "" && req.FullContext != req.Content {
		fmt.Fprintf(&b, "utterance: %s\n", req.FullContext)
	}
	if req.Speaker != "" {
		fmt.Fprintf(&b, "speaker: %s\n", req.Speaker)
	}
	if req.Hints.Owner != "" {
		owner := req.Hints.Owner
		if owner == phrases.OwnerSelf {
			owner = "the speaker"
		}
		fmt.Fprintf(&b, "hint owner: %s\n", owner)
	}
	if req.Hints.Deadline != "" {
		fmt.Fprintf(&b, "hint deadline: %s\n", req.Hints.Deadline)
	}
	if req.Hints.Priority != "" {
		fmt.Fprintf(&b, "hint priority: %s\n", req.Hints.Priority)
	}
	return b.String()
}
