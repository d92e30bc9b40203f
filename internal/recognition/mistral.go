package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/igor-kupczynski/foodbuddy/internal/secret"
)

const (
	defaultBaseURL = "https://api.mistral.ai"
	defaultModel   = "mistral-large-3-25-12"

	systemPrompt = `You are a food-logging assistant. The user sends photos from a single
meal, possibly with notes for context.

- Describe all food and drink items visible across the photos
- If a photo shows a nutrition label or restaurant menu, extract the
  relevant items and nutritional info instead of describing the image
- Incorporate the user's notes - they may correct, clarify, or add
  context the photos don't show
- Be concise and specific (e.g. "grilled chicken breast" not just "meat")`
)

// MistralClient calls the Mistral chat-completions API with a strict JSON
// schema so the answer is a single description string.
type MistralClient struct {
	client *resty.Client
	keys   secret.Store
	model  string
}

// MistralOption configures the client.
type MistralOption func(*MistralClient)

// WithBaseURL points the client at a different endpoint. Tests use this
// with an httptest server.
func WithBaseURL(base string) MistralOption {
	return func(c *MistralClient) { c.client.SetBaseURL(base) }
}

// WithModel overrides the model name.
func WithModel(model string) MistralOption {
	return func(c *MistralClient) { c.model = model }
}

// NewMistralClient builds a client reading its credential from keys on
// every call, so key changes take effect without a restart.
func NewMistralClient(keys secret.Store, opts ...MistralOption) *MistralClient {
	c := &MistralClient{
		client: resty.New().
			SetBaseURL(defaultBaseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(2 * time.Minute),
		keys:  keys,
		model: defaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *MistralClient) Describe(ctx context.Context, images [][]byte, notes string) (string, error) {
	if len(images) == 0 {
		return "", ErrDecoding
	}

	key, err := c.keys.Get()
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNoAPIKey
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: makeUserContent(images, notes)},
		},
		ResponseFormat: strictDescriptionSchema,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(key).
		SetBody(&body).
		Post("/v1/chat/completions")
	if err != nil {
		return "", ErrNetwork
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		raw := resp.Body()
		if len(raw) > 2000 {
			raw = raw[:2000]
		}
		return "", &HTTPError{StatusCode: resp.StatusCode(), Body: string(raw)}
	}

	var payload chatResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", ErrDecoding
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message.Content == "" {
		return "", ErrDecoding
	}

	// The schema-constrained answer is itself JSON with one field.
	var desc descriptionPayload
	if err := json.Unmarshal([]byte(payload.Choices[0].Message.Content), &desc); err != nil {
		return "", ErrDecoding
	}
	description := strings.TrimSpace(desc.Description)
	if description == "" {
		return "", ErrDecoding
	}
	return description, nil
}

func makeUserContent(images [][]byte, notes string) []contentBlock {
	blocks := make([]contentBlock, 0, len(images)+1)
	for _, img := range images {
		blocks = append(blocks, contentBlock{
			Type:     "image_url",
			ImageURL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
		})
	}
	if notes := strings.TrimSpace(notes); notes != "" {
		blocks = append(blocks, contentBlock{Type: "text", Text: "Additional context: " + notes})
	}
	return blocks
}

// --- Wire types ---

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []contentBlock
}

type contentBlock struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url,omitempty"`
	Text     string `json:"text,omitempty"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

var strictDescriptionSchema = responseFormat{
	Type: "json_schema",
	JSONSchema: jsonSchema{
		Name:   "food_description",
		Strict: true,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"description": {
					"type": "string",
					"description": "1-3 sentence description of the food and drink items in the meal"
				}
			},
			"required": ["description"],
			"additionalProperties": false
		}`),
	},
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type descriptionPayload struct {
	Description string `json:"description"`
}
