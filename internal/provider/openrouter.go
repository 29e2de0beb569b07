package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ultichat/internal/billing"
	"ultichat/internal/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter talks to an OpenAI-compatible chat completions endpoint and
// asks it to report the billed cost alongside usage.
type OpenRouter struct {
	client openai.Client
	apiKey string
}

var _ Generator = (*OpenRouter)(nil)

func NewOpenRouter(cfg config.ProviderConfig) *OpenRouter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		// 失败直接返回，不重试
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}
	return &OpenRouter{
		client: openai.NewClient(opts...),
		apiKey: cfg.APIKey,
	}
}

func (p *OpenRouter) HasAPIKey() bool {
	return p.apiKey != ""
}

func (p *OpenRouter) Generate(ctx context.Context, req Request) (*Completion, error) {
	callOpts := []option.RequestOption{
		option.WithJSONSet("usage", map[string]any{"include": true}),
		option.WithJSONSet("include_costs", true),
	}
	switch {
	case p.apiKey != "":
	case req.APIKey != "":
		callOpts = append(callOpts, option.WithAPIKey(req.APIKey))
	default:
		return nil, ErrNoAPIKey
	}

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(req.Model),
		Messages:  buildMessages(req.Messages),
		MaxTokens: openai.Int(req.MaxOutputTokens),
	}

	completion, err := p.client.Chat.Completions.New(ctx, params, callOpts...)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			detail := strings.TrimSpace(apiErr.RawJSON())
			if detail == "" {
				detail = apiErr.Error()
			}
			log.WithFields(log.Fields{
				"model":  req.Model,
				"status": apiErr.StatusCode,
			}).Warn("provider: upstream error")
			return nil, &Error{Status: apiErr.StatusCode, Detail: detail}
		}
		return nil, err
	}

	out, err := parseCompletion(completion.RawJSON(), completion)
	if err != nil {
		log.WithField("model", req.Model).Warn("provider: malformed completion")
		return nil, err
	}
	return out, nil
}

func buildMessages(turns []billing.Turn) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		if t.Role == "user" {
			msgs = append(msgs, openai.UserMessage(t.Text))
		} else {
			msgs = append(msgs, openai.AssistantMessage(t.Text))
		}
	}
	return msgs
}

// parseCompletion reads reply and finish reason from the typed completion,
// and usage and cost from the raw body, since presence matters for both.
// A body without choices is an upstream error and is never billed.
func parseCompletion(raw string, completion *openai.ChatCompletion) (*Completion, error) {
	if completion == nil || len(completion.Choices) == 0 {
		detail := strings.TrimSpace(raw)
		if detail == "" {
			detail = "empty completion"
		}
		return nil, &Error{Status: http.StatusBadGateway, Detail: detail}
	}
	out := &Completion{
		Reply:        completion.Choices[0].Message.Content,
		FinishReason: string(completion.Choices[0].FinishReason),
	}

	doc := gjson.Parse(raw)
	if u := doc.Get("usage"); u.Exists() && u.IsObject() {
		out.Usage = &billing.Usage{
			PromptTokens:     u.Get("prompt_tokens").Int(),
			CompletionTokens: u.Get("completion_tokens").Int(),
			TotalTokens:      u.Get("total_tokens").Int(),
		}
	}
	out.Cost = reportedCost(doc)
	return out, nil
}

// reportedCost prefers a top-level cost, then usage.cost.
func reportedCost(doc gjson.Result) decimal.NullDecimal {
	for _, path := range []string{"cost", "usage.cost"} {
		v := doc.Get(path)
		if v.Type != gjson.Number {
			continue
		}
		d, err := decimal.NewFromString(v.Raw)
		if err != nil {
			continue
		}
		return decimal.NewNullDecimal(d)
	}
	return decimal.NullDecimal{}
}
