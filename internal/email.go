package internal

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"strings"

	"github.com/wneessen/go-mail"
)

//go:embed email.html
var emailFS embed.FS

// SMTPConfig holds the delivery settings for the notification sender.
type SMTPConfig struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Recipient string
}

// EmailSender delivers digest emails over SMTP with bounded retry for
// transient failures. Authentication failures and permanent rejections are
// not retried.
type EmailSender struct {
	client    *mail.Client
	username  string
	recipient string
	retry     RetryPolicy
	tmpl      *template.Template
}

// NewEmailSender creates a sender for the given SMTP configuration.
func NewEmailSender(cfg SMTPConfig) (*EmailSender, error) {
	if cfg.Server == "" || cfg.Username == "" || cfg.Recipient == "" {
		return nil, fmt.Errorf("smtp server, username and recipient are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	client, err := mail.NewClient(cfg.Server,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}

	tmpl, err := template.ParseFS(emailFS, "email.html")
	if err != nil {
		return nil, fmt.Errorf("parsing email template: %w", err)
	}

	policy := DefaultRetryPolicy()
	return &EmailSender{
		client:    client,
		username:  cfg.Username,
		recipient: cfg.Recipient,
		retry:     policy,
		tmpl:      tmpl,
	}, nil
}

// Send delivers the digest. A nil return is the orchestrator's sole signal
// that the notification went out; the completed commit must follow it, never
// precede it.
func (es *EmailSender) Send(ctx context.Context, digest *Digest) error {
	msg, err := es.buildMessage(digest)
	if err != nil {
		return &DeliveryError{Permanent: true, Err: err}
	}

	err = es.retry.Do(ctx, func(ctx context.Context) error {
		if err := es.client.DialAndSendWithContext(ctx, msg); err != nil {
			return classifySMTPError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("tubedigest: email sent for video %s", digest.Video.VideoID)
	return nil
}

func (es *EmailSender) buildMessage(digest *Digest) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat("YouTube Digest", es.username); err != nil {
		return nil, fmt.Errorf("setting sender: %w", err)
	}
	if err := msg.To(es.recipient); err != nil {
		return nil, fmt.Errorf("setting recipient: %w", err)
	}
	msg.Subject(digestSubject(digest.Video))

	msg.SetBodyString(mail.TypeTextPlain, plainBody(digest))

	htmlBody, err := es.htmlBody(digest)
	if err != nil {
		return nil, err
	}
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)

	if len(digest.Audio) > 0 {
		err := msg.AttachReader(digest.Video.VideoID+"_summary.mp3",
			bytes.NewReader(digest.Audio),
			mail.WithFileContentType("audio/mpeg"))
		if err != nil {
			return nil, fmt.Errorf("attaching narration: %w", err)
		}
	}
	return msg, nil
}

func (es *EmailSender) htmlBody(digest *Digest) (string, error) {
	video := digest.Video
	thumbnail := video.ThumbnailURL
	if thumbnail == "" {
		thumbnail = "https://img.youtube.com/vi/" + video.VideoID + "/maxresdefault.jpg"
	}
	var sb strings.Builder
	err := es.tmpl.Execute(&sb, map[string]string{
		"ChannelName":  channelNameOrUnknown(video),
		"Title":        video.Title,
		"URL":          video.URL(),
		"ThumbnailURL": thumbnail,
		"Summary":      digest.Summary,
	})
	if err != nil {
		return "", fmt.Errorf("rendering email body: %w", err)
	}
	return sb.String(), nil
}

// digestSubject builds "[channel] title", truncating long titles so the
// subject stays scannable.
func digestSubject(video VideoRef) string {
	title := video.Title
	if len(title) > 50 {
		title = cutAtRuneBoundary(title, 50) + "..."
	}
	return fmt.Sprintf("[%s] %s", channelNameOrUnknown(video), title)
}

func plainBody(digest *Digest) string {
	video := digest.Video
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n%s\n\n", video.Title, channelNameOrUnknown(video))
	sb.WriteString(digest.Summary)
	fmt.Fprintf(&sb, "\n\nWatch: %s\n", video.URL())
	return sb.String()
}

func channelNameOrUnknown(video VideoRef) string {
	if video.ChannelName == "" {
		return "Unknown Channel"
	}
	return video.ChannelName
}

// classifySMTPError maps SMTP failures onto the retry taxonomy: 4xx replies
// and dial problems are transient, auth failures and 5xx rejections are
// permanent.
func classifySMTPError(err error) error {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		if sendErr.IsTemp() {
			return Transient(&DeliveryError{Err: err})
		}
		return Permanent(&DeliveryError{Permanent: true, Err: err})
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return Transient(&DeliveryError{Err: err})
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "auth") || strings.Contains(msg, "535") {
		return Permanent(&DeliveryError{Permanent: true, Err: err})
	}
	return Transient(&DeliveryError{Err: err})
}
