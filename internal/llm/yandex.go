package llm

import (
	"context"
	"fmt"

	"github.com/Morwran/yagpt"
)

// YandexClient serves a single engine, the one yagpt talks to.
type YandexClient struct {
	ya       yagpt.YaGPTFace
	iamToken string
}

func NewYandex(oauthToken, folderID string) (*YandexClient, error) {
	// Create IAM token from OAuth token
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init yandex iam: %w", err)
	}
	resp, err := iam.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create iam token: %w", err)
	}

	// Create YaGPT client for a folder
	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to init yagpt: %w", err)
	}

	return &YandexClient{
		ya:       ya,
		iamToken: resp.IamToken,
	}, nil
}

func (c *YandexClient) ListEngines(ctx context.Context) ([]Engine, error) {
	return []Engine{{ID: yagpt.YaModelLite, Owner: "yandex", Ready: true}}, nil
}

func (c *YandexClient) CreateCompletion(ctx context.Context, engineID, prompt string) (Completion, error) {
	messages := []yagpt.Message{{Role: "user", Content: prompt}}

	resp, err := c.ya.CompletionWithCtx(ctx, c.iamToken, messages)
	if err != nil {
		kind := KindAPI
		if ctx.Err() != nil {
			kind = KindTransport
		}
		return Completion{}, &Error{Kind: kind, Op: "create completion", Err: err}
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return Completion{}, &Error{Kind: KindAPI, Op: "create completion", Err: ErrNoChoices}
	}
	out := Completion{Text: resp.Alternatives[0].Message.Content, Engine: yagpt.YaModelLite}
	out.PromptTokens = int(resp.Usage.InputTextTokens)
	out.CompletionTokens = int(resp.Usage.CompletionTokens)
	out.TotalTokens = int(resp.Usage.TotalTokens)
	return out, nil
}
