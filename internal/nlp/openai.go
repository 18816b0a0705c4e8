package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/storefrontlabs/adminflow/pkg/schema"
)

// AdapterConfig configures the OpenAI-backed extractor.
type AdapterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIExtractor implements Extractor against the OpenAI chat API. The
// model is asked for a single JSON object; anything else is an extraction
// failure, never a crash.
type OpenAIExtractor struct {
	client *openai.Client
	config AdapterConfig
}

// NewOpenAIExtractor creates an OpenAI-backed extractor.
func NewOpenAIExtractor(config AdapterConfig) *OpenAIExtractor {
	client := openai.NewClient(config.APIKey)

	if config.BaseURL != "" {
		clientConfig := openai.DefaultConfig(config.APIKey)
		clientConfig.BaseURL = config.BaseURL
		client = openai.NewClientWithConfig(clientConfig)
	}

	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &OpenAIExtractor{
		client: client,
		config: config,
	}
}

const extractionSystemPrompt = `You convert store-administration requests into JSON.
Respond with exactly one JSON object and nothing else:
{"intent": string, "entities": object, "confidence": number}

Supported intents and their entity fields:
- update_product_price: {"sku": string, "new_price": number}
- update_product_description: {"sku": string, "description": string}
- update_promotion_status: {"sku": string, "promoted": boolean}
- cancel_order: {"order_number": string, "reason": string}
- update_order_status: {"order_number": string, "new_status": string}
- refund_order: {"order_number": string, "amount": number, "reason": string}
- lookup_product: {"sku": string}
- lookup_order: {"order_number": string}

confidence is your certainty in [0,1] that intent and entities match the request.
If the request matches no intent, use intent "unknown" with empty entities and low confidence.`

// Extract implements Extractor.
func (o *OpenAIExtractor) Extract(ctx context.Context, message string, sc SessionContext) (*schema.Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
	}
	if len(sc.RecentIntents) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Recent intents in this session, newest first: " + strings.Join(sc.RecentIntents, ", "),
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.config.Model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExtraction, "OpenAI API error: %s", err.Error()).WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return nil, schema.NewError(schema.ErrCodeExtraction, "no response from OpenAI")
	}

	return parseExtraction(resp.Choices[0].Message.Content)
}

// parseExtraction decodes the model's JSON reply into a plan. Markdown
// fences around the object are tolerated since models add them despite
// instructions.
func parseExtraction(content string) (*schema.Plan, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw struct {
		Intent     string          `json:"intent"`
		Entities   json.RawMessage `json:"entities"`
		Confidence float64         `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExtraction,
			"model returned malformed JSON: %s", err.Error()).WithCause(err)
	}
	if raw.Intent == "" {
		return nil, schema.NewError(schema.ErrCodeExtraction, "model returned no intent")
	}
	if len(raw.Entities) == 0 {
		raw.Entities = json.RawMessage(`{}`)
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return nil, schema.NewError(schema.ErrCodeExtraction,
			fmt.Sprintf("confidence %v out of range [0,1]", raw.Confidence))
	}

	return &schema.Plan{
		Intent:     raw.Intent,
		Entities:   raw.Entities,
		Confidence: raw.Confidence,
	}, nil
}

var _ Extractor = (*OpenAIExtractor)(nil)
