package internal

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

//go:embed config.toml
var configFS embed.FS

// Config holds application settings.
type Config struct {
	// Credentials, environment-only.
	YouTubeAPIKey string
	OpenAIAPIKey  string

	// Summarization. Prompt is empty (use the built-in template), an inline
	// template string, or a path to a template file.
	SummaryModel       string
	TTSVoice           string
	Prompt             string
	MaxTranscriptChars int

	// Candidate selection.
	Languages   []string
	Lookback    time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration

	// YouTube quota budget.
	QuotaCeiling int
	QuotaReserve int

	// Delivery.
	SMTP SMTPConfig

	CallTimeout time.Duration
	Schedule    string
	Verbose     bool

	// Fixed XDG paths (not configurable).
	ConfigDir string
	DataDir   string
	DBPath    string
}

// InitConfig initializes Viper and loads configuration from the XDG config
// file, the working directory, and the environment.
func InitConfig() *Config {
	configDir := filepath.Join(xdg.ConfigHome, "tubedigest")
	dataDir := filepath.Join(xdg.DataHome, "tubedigest")

	v := viper.New()

	v.SetDefault("summary_model", "gpt-4o-mini")
	v.SetDefault("tts_voice", "alloy")
	v.SetDefault("languages", []string{"en"})
	v.SetDefault("lookback", 24*time.Hour)
	v.SetDefault("min_duration", time.Minute)
	v.SetDefault("max_duration", 30*time.Minute)
	v.SetDefault("max_transcript_chars", 400_000)
	v.SetDefault("quota_ceiling", 10_000)
	v.SetDefault("quota_reserve", 0)
	v.SetDefault("call_timeout", 30*time.Second)
	v.SetDefault("schedule", "0 8 * * *")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("verbose", false)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	v.SetEnvPrefix("TUBEDIGEST")
	v.AutomaticEnv()

	// Secrets come from their conventional environment variables.
	_ = v.BindEnv("youtube_api_key", "YOUTUBE_API_KEY")
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("smtp_password", "SMTP_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: Error reading config file: %v\n", err)
		}
	}

	config := &Config{
		YouTubeAPIKey:      v.GetString("youtube_api_key"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		SummaryModel:       v.GetString("summary_model"),
		TTSVoice:           v.GetString("tts_voice"),
		Prompt:             v.GetString("prompt"),
		MaxTranscriptChars: v.GetInt("max_transcript_chars"),
		Languages:          v.GetStringSlice("languages"),
		Lookback:           v.GetDuration("lookback"),
		MinDuration:        v.GetDuration("min_duration"),
		MaxDuration:        v.GetDuration("max_duration"),
		QuotaCeiling:       v.GetInt("quota_ceiling"),
		QuotaReserve:       v.GetInt("quota_reserve"),
		SMTP: SMTPConfig{
			Server:    v.GetString("smtp_server"),
			Port:      v.GetInt("smtp_port"),
			Username:  v.GetString("smtp_username"),
			Password:  v.GetString("smtp_password"),
			Recipient: v.GetString("email_recipient"),
		},
		CallTimeout: v.GetDuration("call_timeout"),
		Schedule:    v.GetString("schedule"),
		Verbose:     v.GetBool("verbose"),

		ConfigDir: configDir,
		DataDir:   dataDir,
		DBPath:    filepath.Join(dataDir, "processed_videos.db"),
	}

	if config.Verbose {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}
	return config
}

// Validate checks that every setting required for a real run is present.
// Dry runs still need the YouTube and OpenAI credentials.
func (c *Config) Validate(dryRun bool) error {
	var missing []string
	if c.YouTubeAPIKey == "" {
		missing = append(missing, "YOUTUBE_API_KEY")
	}
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if !dryRun {
		if c.SMTP.Server == "" {
			missing = append(missing, "smtp_server")
		}
		if c.SMTP.Username == "" {
			missing = append(missing, "smtp_username")
		}
		if c.SMTP.Password == "" {
			missing = append(missing, "SMTP_PASSWORD")
		}
		if c.SMTP.Recipient == "" {
			missing = append(missing, "email_recipient")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}

// EnsureDefaultConfig writes the embedded default config file into the XDG
// config directory if none exists yet.
func EnsureDefaultConfig(configDir string) error {
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	raw, err := configFS.ReadFile("config.toml")
	if err != nil {
		return fmt.Errorf("reading embedded default configuration: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing default configuration: %w", err)
	}
	fmt.Printf("Created default configuration at %s\n", path)
	return nil
}

// EnsureDirs creates the given directories if they don't exist.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
