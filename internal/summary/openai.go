package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/pkg/circuitbreaker"
	"github.com/jwalitptl/medinotes/pkg/logger"
)

const DefaultModel = "gpt-4o-mini"

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

// OpenAI streams chat completions. Consecutive upstream failures open a
// circuit breaker; client disconnects and cancellations do not count.
type OpenAI struct {
	client  *openai.Client
	model   string
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

func NewOpenAI(cfg OpenAIConfig, l *logger.Logger) *OpenAI {
	if l == nil {
		l = logger.Nop()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "openai",
			MaxFailures: cfg.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
			IsFailure:   isUpstreamFailure,
		}),
		log: l.With("summary.openai"),
	}
}

func (o *OpenAI) Name() string {
	return "openai"
}

func (o *OpenAI) Stream(ctx context.Context, req model.ConsultationRequest, emit func(string) error) error {
	err := o.breaker.Execute(func() error {
		return o.stream(ctx, req, emit)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (o *OpenAI) stream(ctx context.Context, req model.ConsultationRequest, emit func(string) error) error {
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(req)},
		},
		Stream: true,
	})
	if err != nil {
		return fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive completion chunk: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		text := resp.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		if err := emit(text); err != nil {
			return emitError(err)
		}
	}
}

func isUpstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrEmit) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
