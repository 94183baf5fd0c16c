package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client *openai.Client
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

// OpenAIOptions carries the injected credentials; nothing is read from the environment here.
type OpenAIOptions struct {
	APIKey   string
	BaseURL  string
	Referrer string
	Title    string
	// HTTPClient replaces the default transport when set.
	HTTPClient *http.Client
}

func NewOpenAI(opts OpenAIOptions) *OpenAIClient {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	base := http.DefaultTransport
	if opts.HTTPClient != nil {
		config.HTTPClient = opts.HTTPClient
		if opts.HTTPClient.Transport != nil {
			base = opts.HTTPClient.Transport
		}
	}
	// Inject optional headers (useful for OpenRouter)
	if opts.Referrer != "" || opts.Title != "" {
		h := http.Header{}
		if opts.Referrer != "" {
			h.Set("HTTP-Referer", opts.Referrer)
		}
		if opts.Title != "" {
			h.Set("X-Title", opts.Title)
		}
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: base, headers: h}}
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config)}
}

func (c *OpenAIClient) ListEngines(ctx context.Context) ([]Engine, error) {
	list, err := c.client.ListEngines(ctx)
	if err != nil {
		return nil, classifyOpenAI("list engines", err)
	}
	out := make([]Engine, 0, len(list.Engines))
	for _, e := range list.Engines {
		out = append(out, Engine{ID: e.ID, Owner: e.Owner, Ready: e.Ready})
	}
	return out, nil
}

func (c *OpenAIClient) CreateCompletion(ctx context.Context, engineID, prompt string) (Completion, error) {
	resp, err := c.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:  engineID,
		Prompt: prompt,
	})
	if err != nil {
		return Completion{}, classifyOpenAI("create completion", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, &Error{Kind: KindAPI, Op: "create completion", Err: ErrNoChoices}
	}
	return Completion{
		Text:             resp.Choices[0].Text,
		Engine:           engineID,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// classifyOpenAI maps go-openai errors onto transport/api kinds. Anything that carries an
// HTTP status came back from the service; everything else never got an answer.
func classifyOpenAI(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindAPI, Op: op, Err: fmt.Errorf("status %d: %w", apiErr.HTTPStatusCode, err)}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &Error{Kind: KindAPI, Op: op, Err: fmt.Errorf("status %d: %w", reqErr.HTTPStatusCode, err)}
	}
	if errors.Is(err, openai.ErrCompletionUnsupportedModel) {
		return &Error{Kind: KindAPI, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}
