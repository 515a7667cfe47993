// Package telegram sends the edge digest via the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/pipeline"
)

// maxListed caps the edges spelled out in one digest.
const maxListed = 10

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// History remembers which edges were sent and when.
type History interface {
	NotifiedSince(ctx context.Context, keys []string, since time.Time) (map[string]bool, error)
	MarkNotified(ctx context.Context, ns []models.Notification) error
}

// Client handles Telegram notifications.
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	history        History
	cooldown       time.Duration
	now            func() time.Time
}

var _ pipeline.EdgeNotifier = (*Client)(nil)

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return newClient(bot, chatIDInt, maxRetries, retryDelayBase), nil
}

func newClient(bot sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		now:            time.Now,
	}
}

// WithHistory enables the per-match cooldown.
func (c *Client) WithHistory(h History, cooldown time.Duration) *Client {
	c.history = h
	c.cooldown = cooldown
	return c
}

// WithClock overrides the time source.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// NotifyEdges sends one digest of the records not already sent within the
// cooldown, then records them as sent.
func (c *Client) NotifyEdges(ctx context.Context, records []models.DeltaRecord) error {
	if len(records) == 0 {
		return nil
	}
	fresh, err := c.FilterRecentlySent(ctx, records)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		logger.Info("all %d edges were sent within the last %s", len(records), c.cooldown)
		return nil
	}

	now := c.now()
	if err := c.sendMarkdownV2(ctx, formatDigest(fresh, now)); err != nil {
		return err
	}
	logger.Info("sent edge digest with %d matches", len(fresh))

	if c.history == nil {
		return nil
	}
	ns := make([]models.Notification, 0, len(fresh))
	for _, r := range fresh {
		ns = append(ns, models.Notification{Key: r.Match, Phase: r.Phase, Conviction: r.ConvictionCurr, SentAt: now})
	}
	if err := c.history.MarkNotified(ctx, ns); err != nil {
		return fmt.Errorf("failed to record notifications: %w", err)
	}
	return nil
}

// FilterRecentlySent drops records whose match was notified within the
// cooldown. Without history every record passes.
func (c *Client) FilterRecentlySent(ctx context.Context, records []models.DeltaRecord) ([]models.DeltaRecord, error) {
	if c.history == nil || c.cooldown <= 0 {
		return records, nil
	}
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Match)
	}
	recent, err := c.history.NotifiedSince(ctx, keys, c.now().Add(-c.cooldown))
	if err != nil {
		return nil, fmt.Errorf("failed to check notification history: %w", err)
	}
	var result []models.DeltaRecord
	for _, r := range records {
		if recent[r.Match] {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// SendError sends a pipeline failure notification.
func (c *Client) SendError(ctx context.Context, runErr error) error {
	text := fmt.Sprintf("⚠️ *Pipeline error*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(ctx, text)
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i+1 == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// formatDigest renders delta records as a Telegram MarkdownV2 message.
func formatDigest(records []models.DeltaRecord, at time.Time) string {
	var b strings.Builder
	b.WriteString("📊 *Edge digest*\n")
	fmt.Fprintf(&b, "📅 Generated: %s\n\n", escapeMarkdownV2(at.UTC().Format("2006-01-02 15:04:05")))

	for i, r := range records {
		if i == maxListed {
			fmt.Fprintf(&b, "\\.\\.\\. and %d more\n", len(records)-maxListed)
			break
		}
		marker := "📈"
		if r.DeltaConviction < 0 {
			marker = "📉"
		}
		if r.NewEntity {
			marker = "🆕"
		}
		fmt.Fprintf(&b, "%d\\. %s *%s* \\[%s\\]\n", i+1, marker, escapeMarkdownV2(r.Match), escapeMarkdownV2(string(r.Phase)))
		fmt.Fprintf(&b, "   conviction %s → %s \\(%s\\)\n",
			escapeMarkdownV2(fmt.Sprintf("%.3f", r.ConvictionPrev)),
			escapeMarkdownV2(fmt.Sprintf("%.3f", r.ConvictionCurr)),
			escapeMarkdownV2(fmt.Sprintf("%+.3f", r.DeltaConviction)))
		fmt.Fprintf(&b, "   volume %s, open interest %s, velocity %s\n\n",
			escapeMarkdownV2(fmt.Sprintf("%+.0f", r.DeltaVolume)),
			escapeMarkdownV2(fmt.Sprintf("%+.0f", r.DeltaOpenInterest)),
			escapeMarkdownV2(fmt.Sprintf("%.2f", r.Velocity)))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
