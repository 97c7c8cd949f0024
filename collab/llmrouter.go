package collab

import (
	"context"
	"fmt"

	"github.com/brunobiangulo/specconverge/llm"
)

// Router is the reference LLMRouter implementation: it wraps the
// teacher's llm.Provider registry (llm.NewProvider) with a circuit
// breaker per provider, so a provider failing repeatedly is taken out
// of rotation for openMs rather than retried on every single call,
// spec.md §4.14/§7 item 8.
type Router struct {
	provider llm.Provider
	breaker  *circuitBreaker
}

// RouterConfig configures the wrapped provider plus breaker tuning.
type RouterConfig struct {
	Provider         llm.Config
	FailureThreshold int
	OpenMs           int64
}

// NewRouter builds a Router from provider configuration, failing if the
// underlying provider cannot be constructed.
func NewRouter(cfg RouterConfig) (*Router, error) {
	provider, err := llm.NewProvider(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("collab: constructing llm provider: %w", err)
	}
	return &Router{
		provider: provider,
		breaker:  newCircuitBreaker(cfg.FailureThreshold, cfg.OpenMs),
	}, nil
}

// Complete sends one chat completion through the breaker-guarded
// provider. A call made while the breaker is open fails fast without
// touching the network.
func (r *Router) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if !r.breaker.allow() {
		return LLMResponse{}, fmt.Errorf("collab: llm provider circuit open")
	}

	responseFormat := ""
	if req.JSONMode {
		responseFormat = "json_object"
	}
	resp, err := r.provider.Chat(ctx, llm.ChatRequest{
		Model:          req.Model,
		Messages:       []llm.Message{{Role: "user", Content: req.Prompt}},
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: responseFormat,
	})
	if err != nil {
		r.breaker.recordFailure()
		return LLMResponse{}, fmt.Errorf("collab: llm chat: %w", err)
	}
	r.breaker.recordSuccess()

	return LLMResponse{
		Content:      resp.Content,
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
	}, nil
}
