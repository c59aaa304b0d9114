package internal

import "testing"

func TestInitConfig_PromptOverrideFromEnv(t *testing.T) {
	t.Setenv("TUBEDIGEST_PROMPT", "tldr of {{.Title}}: {{.Transcript}}")

	cfg := InitConfig()
	if cfg.Prompt != "tldr of {{.Title}}: {{.Transcript}}" {
		t.Fatalf("expected prompt override, got %q", cfg.Prompt)
	}

	// The override must parse as a prompt template and be used for rendering.
	prompts, err := NewPromptManager(cfg.Prompt)
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

func TestInitConfig_PromptDefaultsToEmpty(t *testing.T) {
	cfg := InitConfig()
	if cfg.Prompt != "" {
		t.Fatalf("expected empty prompt default, got %q", cfg.Prompt)
	}
}
