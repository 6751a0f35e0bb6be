package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/catalog-crawler/internal/models"
)

const (
	colorHealthy  = 3066993  // #2ECC71
	colorDegraded = 16753920 // #FFA500
	colorFailed   = 16711680 // #FF0000

	maxAttempts    = 3
	retryBaseDelay = 500 * time.Millisecond
	maxRetryAfter  = 30 * time.Second
)

// Client posts run summaries to a Discord webhook.
type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		// Discord allows 5 webhook requests per 2 seconds.
		rateLimiter: rate.NewLimiter(rate.Every(400*time.Millisecond), 1),
	}
}

// SendRunSummary posts one embed describing a finished run. It is a no-op
// when no webhook is configured.
func (c *Client) SendRunSummary(ctx context.Context, summary models.RunSummary) error {
	if c.webhookURL == "" {
		return nil
	}
	payload := discordWebhookPayload{Embeds: []discordEmbed{formatRunSummaryEmbed(summary)}}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.post(ctx, body)
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordEmbedFooter  `json:"footer,omitempty"`
}

func formatRunSummaryEmbed(s models.RunSummary) discordEmbed {
	color := colorHealthy
	switch {
	case s.Listings == 0:
		color = colorFailed
	case len(s.FailedKeywords) > 0 || s.SellersExhausted > 0:
		color = colorDegraded
	}

	var ts string
	if !s.StartedAt.IsZero() {
		ts = s.StartedAt.Format(time.RFC3339)
	}

	fields := []discordEmbedField{
		{Name: "Listings", Value: strconv.Itoa(s.Listings), Inline: true},
		{Name: "Offers", Value: strconv.Itoa(s.Offers), Inline: true},
		{Name: "Duration", Value: s.Duration.Round(time.Second).String(), Inline: true},
		{
			Name:  "Sellers",
			Value: fmt.Sprintf("✅ %d  ⏳ %d  🏬 %d", s.SellersEnriched, s.SellersExhausted, s.OperatorSellers),
		},
		{
			Name:  "Upstream",
			Value: fmt.Sprintf("%d calls, %d cache hits", s.NetworkCalls, s.CacheHits),
		},
	}
	if len(s.FailedKeywords) > 0 {
		fields = append(fields, discordEmbedField{Name: "Failed keywords", Value: strings.Join(s.FailedKeywords, ", ")})
	}

	return discordEmbed{
		Title:       fmt.Sprintf("Crawl finished: %d keywords", len(s.Keywords)),
		Description: strings.Join(s.Keywords, ", "),
		Timestamp:   ts,
		Color:       color,
		Fields:      fields,
		Footer:      discordEmbedFooter{Text: "run " + s.RunID},
	}
}

func (c *Client) post(ctx context.Context, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt == maxAttempts-1 {
				break
			}
			if !sleep(ctx, retryBaseDelay<<attempt) {
				return ctx.Err()
			}
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("discord status: %s, body: %s", resp.Status, string(respBody))

		wait := retryBackoff(resp, attempt)
		if wait == 0 {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}
		slog.Warn("Discord webhook failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "backoff", wait)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("discord webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the response should not be retried.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return min(time.Duration(secs*float64(time.Second)), maxRetryAfter)
		}
		return retryBaseDelay << attempt
	case resp.StatusCode >= 500:
		return retryBaseDelay << attempt
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
