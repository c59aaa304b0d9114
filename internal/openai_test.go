package internal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

type fakeOpenAIClient struct {
	completion     string
	completionErr  error
	usage          TokenUsage
	speech         []byte
	speechErr      error
	lastPrompt     string
	lastSpeechText string
}

func (f *fakeOpenAIClient) CreateChatCompletion(ctx context.Context, model, system, prompt string) (string, TokenUsage, error) {
	f.lastPrompt = prompt
	if f.completionErr != nil {
		return "", TokenUsage{}, f.completionErr
	}
	return f.completion, f.usage, nil
}

func (f *fakeOpenAIClient) CreateSpeech(ctx context.Context, model, voice, input string) ([]byte, error) {
	f.lastSpeechText = input
	if f.speechErr != nil {
		return nil, f.speechErr
	}
	return f.speech, nil
}

func newTestSummarizer(t *testing.T, client OpenAIClientInterface, maxChars int) (*Summarizer, *QuotaLedger) {
	t.Helper()
	prompts, err := NewPromptManager("")
	if err != nil {
		t.Fatalf("prompt manager: %v", err)
	}
	ledger := NewQuotaLedger(10_000, 0)
	return NewSummarizer(client, prompts, ledger, "gpt-4o-mini", "alloy", maxChars), ledger
}

func TestSummarize_ReturnsSummaryAndRecordsCost(t *testing.T) {
	client := &fakeOpenAIClient{
		completion: "a concise summary",
		usage:      TokenUsage{PromptTokens: 1000, CompletionTokens: 500},
	}
	summarizer, ledger := newTestSummarizer(t, client, 0)

	summary, err := summarizer.Summarize(context.Background(),
		&Transcript{VideoID: "v1", Text: "some transcript"},
		VideoRef{VideoID: "v1", Title: "A Video"})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Text != "a concise summary" || summary.Truncated {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	// 1000 prompt tokens at $0.01/1K plus 500 completion at $0.03/1K.
	want := 0.01 + 0.015
	if summary.EstimatedCost < want-1e-9 || summary.EstimatedCost > want+1e-9 {
		t.Fatalf("expected cost %f, got %f", want, summary.EstimatedCost)
	}
	if ledger.Cost() != summary.EstimatedCost {
		t.Fatalf("expected cost recorded in ledger, got %f", ledger.Cost())
	}
	if !strings.Contains(client.lastPrompt, "A Video") {
		t.Fatalf("expected title in prompt, got %q", client.lastPrompt)
	}
	if !strings.Contains(client.lastPrompt, "some transcript") {
		t.Fatalf("expected transcript in prompt, got %q", client.lastPrompt)
	}
}

func TestSummarize_TruncationBoundary(t *testing.T) {
	const limit = 100
	client := &fakeOpenAIClient{completion: "ok"}
	summarizer, _ := newTestSummarizer(t, client, limit)

	atLimit := strings.Repeat("a", limit)
	summary, err := summarizer.Summarize(context.Background(),
		&Transcript{VideoID: "v1", Text: atLimit}, VideoRef{VideoID: "v1"})
	if err != nil {
		t.Fatalf("summarize at limit: %v", err)
	}
	if summary.Truncated {
		t.Fatal("transcript at exactly the limit must not be flagged truncated")
	}

	overLimit := strings.Repeat("a", limit+1)
	summary, err = summarizer.Summarize(context.Background(),
		&Transcript{VideoID: "v1", Text: overLimit}, VideoRef{VideoID: "v1"})
	if err != nil {
		t.Fatalf("summarize over limit: %v", err)
	}
	if !summary.Truncated {
		t.Fatal("transcript one char over the limit must be flagged truncated")
	}
	if !strings.Contains(client.lastPrompt, atLimit) || strings.Contains(client.lastPrompt, overLimit) {
		t.Fatal("expected exactly the prefix within the limit to be summarized")
	}
}

func TestSummarize_TruncationKeepsRunesIntact(t *testing.T) {
	const limit = 100
	client := &fakeOpenAIClient{completion: "ok"}
	summarizer, _ := newTestSummarizer(t, client, limit)

	// 40 three-byte runes = 120 bytes; the cut must land on a rune boundary
	// (33 runes, 99 bytes), never mid-rune.
	text := strings.Repeat("日", 40)
	summary, err := summarizer.Summarize(context.Background(),
		&Transcript{VideoID: "v1", Text: text}, VideoRef{VideoID: "v1"})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !summary.Truncated {
		t.Fatal("expected truncation flag")
	}
	if !utf8.ValidString(client.lastPrompt) {
		t.Fatal("prompt contains a split rune")
	}
	if !strings.Contains(client.lastPrompt, strings.Repeat("日", 33)) {
		t.Fatal("expected 33 whole runes in the prompt")
	}
	if strings.Contains(client.lastPrompt, strings.Repeat("日", 34)) {
		t.Fatal("expected the 34th rune dropped")
	}
}

func TestSummarize_PropagatesCompletionError(t *testing.T) {
	wantErr := errors.New("api down")
	client := &fakeOpenAIClient{completionErr: wantErr}
	summarizer, ledger := newTestSummarizer(t, client, 0)

	_, err := summarizer.Summarize(context.Background(),
		&Transcript{VideoID: "v1", Text: "text"}, VideoRef{VideoID: "v1"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
	if ledger.Cost() != 0 {
		t.Fatalf("failed call must not record cost, got %f", ledger.Cost())
	}
}

func TestNarrate_ReturnsAudioAndRecordsCost(t *testing.T) {
	client := &fakeOpenAIClient{speech: []byte("mp3 bytes")}
	summarizer, ledger := newTestSummarizer(t, client, 0)

	text := strings.Repeat("x", 1_000_000)
	audio, err := summarizer.Narrate(context.Background(), text)
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	if string(audio) != "mp3 bytes" {
		t.Fatalf("unexpected audio: %q", audio)
	}
	// 1M characters at $15/1M.
	if got := ledger.Cost(); got < 15-1e-9 || got > 15+1e-9 {
		t.Fatalf("expected $15 recorded, got %f", got)
	}
	if client.lastSpeechText != text {
		t.Fatal("expected full summary text narrated")
	}
}

func TestPromptManager_CustomInlineTemplate(t *testing.T) {
	prompts, err := NewPromptManager("tldr of {{.Title}}: {{.Transcript}}")
	if err != nil {
		t.Fatalf("prompt manager: %v", err)
	}
	rendered, err := prompts.Render(PromptData{Title: "T", Transcript: "body"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if rendered != "tldr of T: body" {
		t.Fatalf("unexpected render: %q", rendered)
	}
}
