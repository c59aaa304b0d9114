package internal

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Pricing used for informational cost estimates, matching the models the
// service defaults to. Cost ceilings are a configuration policy; these
// numbers only feed the run report.
const (
	inputTokenCostPer1K  = 0.01 // USD per 1K prompt tokens
	outputTokenCostPer1K = 0.03 // USD per 1K completion tokens
	ttsCostPer1MChars    = 15.0 // USD per 1M characters
)

const summarySystemPrompt = "You are an expert at restating video content " +
	"concisely while preserving all key points."

// TokenUsage reports token counts of one chat completion call.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// OpenAIClientInterface defines the OpenAI operations the summarizer needs,
// so tests can substitute a fake for the SDK.
type OpenAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, model, system, prompt string) (string, TokenUsage, error)
	CreateSpeech(ctx context.Context, model, voice, input string) ([]byte, error)
}

// OpenAIClient wraps the official OpenAI Go SDK.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a client for the given API key.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

// CreateChatCompletion runs one chat completion and returns the content and
// token usage.
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, model, system, prompt string) (string, TokenUsage, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", TokenUsage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", TokenUsage{}, fmt.Errorf("no response choices from OpenAI")
	}
	usage := TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// CreateSpeech synthesizes speech for the input text and returns the MP3
// bytes.
func (c *OpenAIClient) CreateSpeech(ctx context.Context, model, voice, input string) ([]byte, error) {
	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: openai.SpeechModel(model),
		Voice: openai.AudioSpeechNewParamsVoice(voice),
		Input: input,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Summarizer turns transcripts into short summaries and narrated audio.
// Both calls are billed; estimated costs are recorded into the ledger.
type Summarizer struct {
	client  OpenAIClientInterface
	prompts *PromptManager
	ledger  *QuotaLedger

	model string
	voice string
	// maxTranscriptChars is the input size limit. Longer transcripts are
	// truncated to this prefix rather than failing the call.
	maxTranscriptChars int
}

// NewSummarizer creates the summarization and narration service.
func NewSummarizer(client OpenAIClientInterface, prompts *PromptManager, ledger *QuotaLedger, model, voice string, maxTranscriptChars int) *Summarizer {
	if maxTranscriptChars <= 0 {
		maxTranscriptChars = 400_000 // ~100K tokens at 4 chars/token
	}
	return &Summarizer{
		client:             client,
		prompts:            prompts,
		ledger:             ledger,
		model:              model,
		voice:              voice,
		maxTranscriptChars: maxTranscriptChars,
	}
}

// Summarize produces a concise restatement of the transcript. Transcripts
// over the input limit degrade to summarizing the truncated prefix, with the
// truncation flagged for the run report.
func (s *Summarizer) Summarize(ctx context.Context, transcript *Transcript, video VideoRef) (*Summary, error) {
	text := transcript.Text
	truncated := false
	if len(text) > s.maxTranscriptChars {
		text = cutAtRuneBoundary(text, s.maxTranscriptChars)
		truncated = true
		log.Printf("tubedigest: transcript for %s truncated to %d bytes", video.VideoID, len(text))
	}

	prompt, err := s.prompts.Render(PromptData{
		Title:      video.Title,
		URL:        video.URL(),
		Transcript: text,
	})
	if err != nil {
		return nil, Permanent(err)
	}

	content, usage, err := s.client.CreateChatCompletion(ctx, s.model, summarySystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("creating chat completion: %w", err)
	}

	cost := float64(usage.PromptTokens)/1000*inputTokenCostPer1K +
		float64(usage.CompletionTokens)/1000*outputTokenCostPer1K
	s.ledger.AddCost(cost)
	log.Printf("tubedigest: summarized %s: %d prompt + %d completion tokens, ~$%.4f",
		video.VideoID, usage.PromptTokens, usage.CompletionTokens, cost)

	return &Summary{Text: content, Truncated: truncated, EstimatedCost: cost}, nil
}

// Narrate synthesizes the summary as MP3 audio.
func (s *Summarizer) Narrate(ctx context.Context, text string) ([]byte, error) {
	audio, err := s.client.CreateSpeech(ctx, "tts-1", s.voice, text)
	if err != nil {
		return nil, fmt.Errorf("creating speech: %w", err)
	}

	cost := float64(len(text)) / 1_000_000 * ttsCostPer1MChars
	s.ledger.AddCost(cost)
	log.Printf("tubedigest: narrated %d characters, ~$%.6f", len(text), cost)
	return audio, nil
}
