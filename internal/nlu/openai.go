// Package nlu provides the OpenAI-backed NLU agent.
package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = `You are the intent classifier of a shopping assistant for a Facebook Messenger store.
Classify the user's message and reply with a single JSON object, no prose, with these keys:
  "action": one of "product.search", "product.more", "input.unknown", "feelings.bad", "help.human", or "smalltalk"
  "fulfillment": a short friendly reply to send to the user
  "action_incomplete": true when you still need another answer from the user to finish the current question
  "parameters": an object of extracted slots, e.g. {"category": "shoes"}
  "contexts": an array carrying any conversation state you want echoed back on the next request`

// Opts holds configuration options for the OpenAI NLU agent.
type Opts struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Option defines a configuration option for the OpenAI NLU agent.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// OpenAIAgent implements Agent on the OpenAI chat completions API.
type OpenAIAgent struct {
	client openai.Client
	model  string
}

// NewOpenAIAgent initializes the agent, falling back to the OPENAI_API_KEY
// environment variable when no key option is given.
func NewOpenAIAgent(opts ...Option) (*OpenAIAgent, error) {
	cfg := Opts{Model: openai.ChatModelGPT4oMini}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	slog.Debug("OpenAIAgent created", "model", cfg.Model, "base_url_set", cfg.BaseURL != "")
	return &OpenAIAgent{client: openai.NewClient(reqOpts...), model: cfg.Model}, nil
}

// SendTextRequest interprets one user message within a session.
func (a *OpenAIAgent) SendTextRequest(ctx context.Context, sessionID, text string, contexts json.RawMessage) (*Response, error) {
	return a.request(ctx, sessionID, "User message: "+text, contexts)
}

// SendEventRequest triggers interpretation of a named event.
func (a *OpenAIAgent) SendEventRequest(ctx context.Context, sessionID, event string, contexts json.RawMessage) (*Response, error) {
	return a.request(ctx, sessionID, "Event: "+event, contexts)
}

// DeleteContexts is a no-op for this agent: contexts live on the
// conversation record and are only replayed through requests.
func (a *OpenAIAgent) DeleteContexts(ctx context.Context, sessionID string) error {
	slog.Debug("OpenAIAgent DeleteContexts no-op", "sessionID", sessionID)
	return nil
}

func (a *OpenAIAgent) request(ctx context.Context, sessionID, input string, contexts json.RawMessage) (*Response, error) {
	slog.Debug("OpenAIAgent request", "sessionID", sessionID, "input_length", len(input))

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
	}
	if len(contexts) > 0 {
		messages = append(messages, openai.SystemMessage("Conversation contexts from the previous turn: "+string(contexts)))
	}
	messages = append(messages, openai.UserMessage(input))

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("OpenAIAgent completion failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("nlu completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("nlu completion returned no choices")
	}

	response, err := parseAgentReply(completion.Choices[0].Message.Content)
	if err != nil {
		slog.Error("OpenAIAgent reply parse failed", "error", err, "sessionID", sessionID)
		return nil, err
	}
	response.SessionID = sessionID
	slog.Debug("OpenAIAgent response", "sessionID", sessionID, "action", response.Action, "incomplete", response.ActionIncomplete)
	return response, nil
}

// parseAgentReply decodes the model's JSON reply, tolerating a Markdown
// code fence around it.
func parseAgentReply(raw string) (*Response, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var reply struct {
		Action           string            `json:"action"`
		Fulfillment      string            `json:"fulfillment"`
		ActionIncomplete bool              `json:"action_incomplete"`
		Parameters       map[string]string `json:"parameters"`
		Contexts         json.RawMessage   `json:"contexts"`
	}
	if err := json.Unmarshal([]byte(trimmed), &reply); err != nil {
		return nil, fmt.Errorf("decode nlu reply: %w", err)
	}
	return &Response{
		Action:           reply.Action,
		Fulfillment:      reply.Fulfillment,
		ActionIncomplete: reply.ActionIncomplete,
		Parameters:       reply.Parameters,
		Contexts:         reply.Contexts,
	}, nil
}
