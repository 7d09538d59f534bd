package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

const providerOpenAI = "openai"

// OpenAIAdapter talks to the Chat Completions API. BaseURL may point at any
// OpenAI-compatible vendor.
type OpenAIAdapter struct {
	client    openai.Client
	model     string
	maxOut    int
	tokenizer *Tokenizer
}

func NewOpenAIAdapter(apiKey, baseURL, model string, maxOut int, tokenizer *Tokenizer) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(2 * time.Minute),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if tokenizer == nil {
		tokenizer = NewTokenizer()
	}
	return &OpenAIAdapter{
		client:    openai.NewClient(opts...),
		model:     model,
		maxOut:    maxOut,
		tokenizer: tokenizer,
	}, nil
}

func (o *OpenAIAdapter) CountTokens(_ context.Context, model string, messages []adapter.Message) (int, error) {
	return o.tokenizer.CountMessages(modelOrDefault(model, o.model), messages), nil
}

func (o *OpenAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	if len(req.Messages) == 0 {
		return adapter.Completion{}, errors.New("openai: no messages")
	}
	model := modelOrDefault(req.Model, o.model)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if s := strings.TrimSpace(req.System); s != "" {
		msgs = append(msgs, openai.SystemMessage(s))
	}
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: msgs,
	}
	maxOut := req.MaxOutputTokens
	if maxOut <= 0 {
		maxOut = o.maxOut
	}
	if maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxOut))
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.ObserveCompletion(providerOpenAI, model, 0, 0, 0, time.Since(start), false)
		return adapter.Completion{}, classify(providerOpenAI, err)
	}

	out := adapter.Completion{Provider: providerOpenAI, Model: model}
	for _, c := range resp.Choices {
		if t := strings.TrimSpace(c.Message.Content); t != "" {
			out.Text = t
			break
		}
	}
	out.Usage = adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	metrics.ObserveCompletion(providerOpenAI, model, out.Usage.PromptTokens, out.Usage.CompletionTokens, out.Usage.TotalTokens, time.Since(start), true)
	return out, nil
}
