package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultOllamaModel is the default local model.
	DefaultOllamaModel = "llama3.1"
	// DefaultOllamaURL is the default Ollama API endpoint.
	DefaultOllamaURL = "http://localhost:11434"
)

// Ollama is the oracle backend talking to a local Ollama daemon.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama creates an Ollama-backed oracle client.
func NewOllama(baseURL, model string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "invalid ollama base url", Err: err}
	}

	return &Ollama{
		client: api.NewClient(u, http.DefaultClient),
		model:  model,
	}, nil
}

// OllamaAvailable checks whether an Ollama daemon answers at the given URL.
func OllamaAvailable(baseURL string) bool {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Analyze implements Client.
func (o *Ollama) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	stream := false
	genReq := &api.GenerateRequest{
		Model:  o.model,
		System: systemPrompt,
		Prompt: buildPrompt(req),
		Stream: &stream,
	}
	if req.Temperature > 0 {
		genReq.Options = map[string]interface{}{"temperature": req.Temperature}
	}
	if req.MaxTokens > 0 {
		if genReq.Options == nil {
			genReq.Options = map[string]interface{}{}
		}
		genReq.Options["num_predict"] = req.MaxTokens
	}

	var raw strings.Builder
	err := o.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		raw.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, classifyOllamaErr(err)
	}

	return ParseAnalysis(raw.String()), nil
}

func classifyOllamaErr(err error) *Error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &Error{
			Kind:    classifyStatus(statusErr.StatusCode),
			Message: statusErr.ErrorMessage,
			Err:     err,
		}
	}
	return &Error{Kind: KindNetwork, Message: "ollama request failed", Err: err}
}
