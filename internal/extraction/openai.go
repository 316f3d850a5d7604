package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"crm-platform/pkg/logger"

	"github.com/sashabaranov/go-openai"
)

const extractionPrompt = `Extract client details from the user's text. Reply with a JSON object of the form
{"fields":[{"name":"companyName|contactName|email|phone|website|cost","value":"...","confidence":0.0-1.0}]}.
Only include values that appear in the text.`

// ChatCompleter is the part of the OpenAI client the extractor uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIExtractor asks a chat model for the fields as JSON.
type OpenAIExtractor struct {
	client ChatCompleter
	model  string
}

func NewOpenAIExtractor(apiKey, model string) *OpenAIExtractor {
	return NewOpenAIExtractorWithClient(openai.NewClient(apiKey), model)
}

func NewOpenAIExtractorWithClient(client ChatCompleter, model string) *OpenAIExtractor {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIExtractor{client: client, model: model}
}

func (o *OpenAIExtractor) Name() string { return "openai" }

var knownFields = map[string]bool{
	FieldCompany: true, FieldContact: true, FieldEmail: true, FieldPhone: true, FieldWebsite: true, FieldCost: true,
}

func (o *OpenAIExtractor) Extract(ctx context.Context, text string) ([]Field, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0,
	})
	if err != nil {
		return nil, fmt.Errorf("openai extraction: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai extraction: no choices")
	}

	var body struct {
		Fields []Field `json:"fields"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &body); err != nil {
		return nil, fmt.Errorf("openai extraction: decode: %w", err)
	}
	out := make([]Field, 0, len(body.Fields))
	for _, f := range body.Fields {
		f.Value = strings.TrimSpace(f.Value)
		if !knownFields[f.Name] || f.Value == "" {
			continue
		}
		if f.Confidence <= 0 || f.Confidence > 1 {
			f.Confidence = 0.5
		}
		f.Source = "openai"
		out = append(out, f)
	}
	return out, nil
}

// Chain tries Primary and falls back to Fallback when it fails.
type Chain struct {
	Primary  Extractor
	Fallback Extractor
}

func (c Chain) Name() string { return c.Primary.Name() }

// Extract returns the fields and the name of the extractor that produced them.
func (c Chain) Extract(ctx context.Context, text string) ([]Field, error) {
	fields, _, err := c.run(ctx, text)
	return fields, err
}

func (c Chain) run(ctx context.Context, text string) ([]Field, string, error) {
	fields, err := c.Primary.Extract(ctx, text)
	if err == nil {
		return fields, c.Primary.Name(), nil
	}
	if c.Fallback == nil || ctx.Err() != nil {
		return nil, c.Primary.Name(), err
	}
	logger.From(ctx).Warn("extractor failed, falling back", "extractor", c.Primary.Name(), "fallback", c.Fallback.Name(), "err", err)
	fields, err = c.Fallback.Extract(ctx, text)
	return fields, c.Fallback.Name(), err
}
