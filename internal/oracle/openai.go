package oracle

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when the config names no model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI is the oracle backend talking to the OpenAI chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI-backed oracle client. baseURL is optional and
// allows pointing at an API-compatible endpoint.
func NewOpenAI(apiKey, baseURL, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, &Error{Kind: KindAuth, Message: "openai api key is empty"}
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Analyze implements Client.
func (o *OpenAI) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = req.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindMalformed, Message: "openai returned no choices"}
	}

	return ParseAnalysis(resp.Choices[0].Message.Content), nil
}

func classifyOpenAIErr(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:    classifyStatus(apiErr.HTTPStatusCode),
			Message: apiErr.Message,
			Err:     err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{
			Kind:    classifyStatus(reqErr.HTTPStatusCode),
			Message: "openai request rejected",
			Err:     err,
		}
	}
	return &Error{Kind: KindNetwork, Message: "openai request failed", Err: err}
}
