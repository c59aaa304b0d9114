package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultTimedtextURL = "https://www.youtube.com/api/timedtext"

// TranscriptClient fetches caption tracks from YouTube's timedtext endpoint.
// This endpoint does not consume Data API quota.
type TranscriptClient struct {
	httpClient *http.Client
	baseURL    string
	retry      RetryPolicy
}

// NewTranscriptClient creates a transcript client with the given per-request
// timeout.
func NewTranscriptClient(timeout time.Duration) *TranscriptClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TranscriptClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultTimedtextURL,
		retry:      DefaultRetryPolicy(),
	}
}

// Fetch tries the preferred languages in order, first success wins, then
// falls back to auto-generated English. It returns ErrNoTranscript when no
// track exists in any requested language, and also after bounded retries of
// transient failures; both resolve the video to skipped rather than failed.
func (tc *TranscriptClient) Fetch(ctx context.Context, videoID string, languages []string) (*Transcript, error) {
	if videoID == "" {
		return nil, Permanent(fmt.Errorf("video id is required"))
	}
	if len(languages) == 0 {
		languages = []string{"en"}
	}

	for _, lang := range languages {
		text, err := tc.fetchTrack(ctx, videoID, lang, false)
		if err != nil {
			log.Printf("tubedigest: transcript fetch %s lang=%s: %v", videoID, lang, err)
			continue
		}
		if text != "" {
			return &Transcript{VideoID: videoID, Language: lang, Text: text}, nil
		}
	}

	// No preferred track; try auto-generated English captions.
	text, err := tc.fetchTrack(ctx, videoID, "en", true)
	if err != nil {
		log.Printf("tubedigest: transcript fetch %s asr: %v", videoID, err)
		return nil, fmt.Errorf("%w: %s", ErrNoTranscript, videoID)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoTranscript, videoID)
	}
	return &Transcript{VideoID: videoID, Language: "en", Generated: true, Text: text}, nil
}

// fetchTrack fetches one caption track, retrying transient failures. An
// empty string means the track does not exist.
func (tc *TranscriptClient) fetchTrack(ctx context.Context, videoID, lang string, generated bool) (string, error) {
	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", lang)
	params.Set("fmt", "json3")
	if generated {
		params.Set("kind", "asr")
	}
	trackURL := tc.baseURL + "?" + params.Encode()

	var text string
	err := tc.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
		if err != nil {
			return Permanent(err)
		}
		resp, err := tc.httpClient.Do(req)
		if err != nil {
			return Transient(err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			// Fall through to parse.
		case http.StatusNotFound:
			text = ""
			return nil
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable:
			return Transient(fmt.Errorf("timedtext returned status %d", resp.StatusCode))
		default:
			return Permanent(fmt.Errorf("timedtext returned status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Transient(err)
		}
		// YouTube answers 200 with an empty body when the track is missing.
		if len(strings.TrimSpace(string(body))) == 0 {
			text = ""
			return nil
		}
		text, err = parseTimedtext(body)
		if err != nil {
			return Permanent(fmt.Errorf("parsing timedtext response: %w", err))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return CleanTranscript(text), nil
}

// timedtextResponse is the json3 payload of the timedtext endpoint.
type timedtextResponse struct {
	Events []timedtextEvent `json:"events"`
}

type timedtextEvent struct {
	Segs []timedtextSegment `json:"segs,omitempty"`
}

type timedtextSegment struct {
	UTF8 string `json:"utf8"`
}

func parseTimedtext(data []byte) (string, error) {
	var resp timedtextResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, event := range resp.Events {
		for _, seg := range event.Segs {
			sb.WriteString(seg.UTF8)
		}
		if len(event.Segs) > 0 {
			sb.WriteString(" ")
		}
	}
	return sb.String(), nil
}

var (
	bracketedRe  = regexp.MustCompile(`\[.*?\]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanTranscript strips caption artifacts like [Music] and [Applause] and
// collapses whitespace so the summarizer sees plain prose.
func CleanTranscript(text string) string {
	text = bracketedRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
