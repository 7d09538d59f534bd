package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

const providerGemini = "gemini"

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
// An empty baseURL keeps the SDK default endpoint.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(model, g.defaultModel), toGenAIContents(messages), nil)
	if err != nil {
		return 0, classify(providerGemini, err)
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	if len(req.Messages) == 0 {
		return adapter.Completion{}, errors.New("gemini: no messages")
	}
	model := modelOrDefault(req.Model, g.defaultModel)
	cfg := &genai.GenerateContentConfig{}
	if s := strings.TrimSpace(req.System); s != "" {
		cfg.SystemInstruction = genai.NewContentFromText(s, genai.RoleUser)
	}
	maxOut := req.MaxOutputTokens
	if maxOut <= 0 {
		maxOut = g.maxOut
	}
	if maxOut > 0 {
		cfg.MaxOutputTokens = int32(maxOut)
	}
	if req.WebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, toGenAIContents(req.Messages), cfg)
	if err != nil {
		metrics.ObserveCompletion(providerGemini, model, 0, 0, 0, time.Since(start), false)
		return adapter.Completion{}, classify(providerGemini, err)
	}

	out := adapter.Completion{Provider: providerGemini, Model: model}
	if resp != nil {
		out.Text = strings.TrimSpace(resp.Text())
		out.Sources = groundingSources(resp)
		if u := resp.UsageMetadata; u != nil {
			out.Usage = adapter.Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			}
		}
	}
	metrics.ObserveCompletion(providerGemini, model, out.Usage.PromptTokens, out.Usage.CompletionTokens, out.Usage.TotalTokens, time.Since(start), true)
	return out, nil
}

// groundingSources reads the web chunks Google Search grounding attached to
// the first candidate.
func groundingSources(resp *genai.GenerateContentResponse) []adapter.Source {
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	md := resp.Candidates[0].GroundingMetadata
	if md == nil {
		return nil
	}
	var out []adapter.Source
	for _, chunk := range md.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		out = append(out, adapter.Source{Type: "url", URL: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return out
}

func toGenAIContents(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if r := strings.ToLower(m.Role); r == "assistant" || r == "model" {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
