package internal

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"
)

//go:embed prompt.txt
var promptFS embed.FS

// PromptData is the template context for the summary prompt.
type PromptData struct {
	Title      string
	URL        string
	Transcript string
}

// PromptManager renders the summarization prompt from either the embedded
// default template or a user-supplied override (inline string or file path).
type PromptManager struct {
	tmpl *template.Template
}

// NewPromptManager builds a prompt manager. custom may be empty (use the
// embedded default), an inline template string, or a path to a template
// file.
func NewPromptManager(custom string) (*PromptManager, error) {
	text := custom
	if text == "" {
		raw, err := promptFS.ReadFile("prompt.txt")
		if err != nil {
			return nil, fmt.Errorf("reading embedded prompt template: %w", err)
		}
		text = string(raw)
	} else if !strings.Contains(text, "{{") {
		raw, err := os.ReadFile(text)
		if err != nil {
			return nil, fmt.Errorf("reading prompt template file: %w", err)
		}
		text = string(raw)
	}

	tmpl, err := template.New("prompt").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}
	return &PromptManager{tmpl: tmpl}, nil
}

// Render produces the prompt for one transcript.
func (pm *PromptManager) Render(data PromptData) (string, error) {
	var sb strings.Builder
	if err := pm.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return sb.String(), nil
}
