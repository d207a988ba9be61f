package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	colorRed    = 16711680
	colorGreen  = 65280
	colorOrange = 16753920
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Discord posts run notifications to webhooks. An empty URL disables the
// matching notification.
type Discord struct {
	errorURL   string
	successURL string
	client     *resty.Client
}

func NewDiscord(errorURL, successURL string) *Discord {
	return &Discord{
		errorURL:   errorURL,
		successURL: successURL,
		client:     resty.New().SetTimeout(10 * time.Second),
	}
}

func (d *Discord) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(DiscordMessage{Embeds: []DiscordEmbed{embed}}).
		Post(url)
	if err != nil {
		return fmt.Errorf("failed to send Discord notification: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode())
	}
	return nil
}

func (d *Discord) SendError(ctx context.Context, errorMessage string) error {
	return d.send(ctx, d.errorURL, DiscordEmbed{
		Title:       "🚨 Compositing failed",
		Description: fmt.Sprintf("An error occurred: %s", errorMessage),
		Color:       colorRed,
	})
}

// SendRunSummary reports a finished run. Runs with failed months go to the
// error webhook.
func (d *Discord) SendRunSummary(ctx context.Context, headline, details string, hasFailures bool) error {
	if hasFailures {
		return d.send(ctx, d.errorURL, DiscordEmbed{
			Title:       "⚠️ Compositing finished with failed months",
			Description: fmt.Sprintf("%s\n\n%s", headline, details),
			Color:       colorOrange,
		})
	}
	return d.send(ctx, d.successURL, DiscordEmbed{
		Title:       "✅ Compositing finished",
		Description: headline,
		Color:       colorGreen,
	})
}
