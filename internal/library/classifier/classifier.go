// Package classifier asks a vision LLM whether an image shows a disaster.
package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second

	// NotADisaster is the label returned for ordinary images.
	NotADisaster = "Not a Disaster"
)

// ErrQuotaExceeded means the provider rejected the call for rate or quota reasons.
var ErrQuotaExceeded = errors.New("classifier quota exceeded")

// Types lists every label the model may answer with.
var Types = []string{
	"Flooding", "Heatwave", "Storm", "Lightning", "Earth Tremor", "Landslide",
	"Residential Fire", "Industrial Fire", "Market Fire", "Vehicle Fire",
	"Power Outage", "Gas Leak", "Building Collapse", "Bridge Failure",
	"Road Sinkhole", "Water Contamination", "Disease Outbreak", "Air Pollution",
	"Waste Pileup", "Animal Attack", "Traffic Accident", "Stampede", "Riot",
	"Cyber Fraud", "Chemical Spill", "Noise Pollution", "Micro-Drought",
	NotADisaster,
}

// Result is the model's verdict. Type or Severity may be empty when the
// model could not decide.
type Result struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Severity   string  `json:"severity"`
	Reason     string  `json:"reason"`
}

// Config configures the OpenAI-compatible endpoint.
type Config struct {
	APIBase string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client classifies images.
type Client struct {
	api   chatCompleter
	model string
}

// New builds a Client. APIBase may point at any OpenAI-compatible
// server, such as Groq or Gemini's compatibility endpoint.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("classifier api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	httpcli, err := gutils.NewHTTPClient(gutils.WithHTTPClientTimeout(cfg.Timeout))
	if err != nil {
		return nil, errors.Wrap(err, "new http client")
	}

	ocfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"); base != "" {
		ocfg.BaseURL = base
	}
	ocfg.HTTPClient = httpcli

	return newClient(openai.NewClientWithConfig(ocfg), cfg.Model), nil
}

func newClient(api chatCompleter, model string) *Client {
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}

	return &Client{api: api, model: model}
}

// Classify sends the image and parses the model's JSON answer.
func (c *Client) Classify(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Classify this image.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		if isQuotaError(err) {
			return nil, errors.Wrap(ErrQuotaExceeded, err.Error())
		}
		return nil, errors.Wrap(err, "create chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("classifier returned no choices")
	}

	return parseResult(resp.Choices[0].Message.Content)
}

func parseResult(raw string) (*Result, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	result := new(Result)
	if err := json.Unmarshal([]byte(raw), result); err != nil {
		return nil, errors.Wrapf(err, "decode classifier answer %q", raw)
	}

	result.Type = strings.TrimSpace(result.Type)
	result.Severity = strings.ToLower(strings.TrimSpace(result.Severity))
	result.Reason = strings.TrimSpace(result.Reason)
	if result.Confidence > 1 {
		result.Confidence /= 100
	}
	switch {
	case result.Confidence < 0:
		result.Confidence = 0
	case result.Confidence > 1:
		result.Confidence = 1
	}

	return result, nil
}

func isQuotaError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		code := strings.ToUpper(apiErr.Type)
		if c, ok := apiErr.Code.(string); ok {
			code += " " + strings.ToUpper(c)
		}
		return strings.Contains(code, "RESOURCE_EXHAUSTED") ||
			strings.Contains(code, "RATE_LIMIT") ||
			strings.Contains(code, "INSUFFICIENT_QUOTA")
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}

	return false
}

var systemPrompt = `You inspect a single photo and decide whether it shows a local disaster.
Answer with one JSON object and nothing else:
{
  "type": one of ` + quotedTypes() + `,
  "confidence": number between 0 and 1 inclusive,
  "severity": "low" | "medium" | "high",
  "reason": short explanation of what in the image supports the answer
}`

func quotedTypes() string {
	quoted := make([]string, 0, len(Types))
	for _, t := range Types {
		quoted = append(quoted, `"`+t+`"`)
	}

	return strings.Join(quoted, ", ")
}
