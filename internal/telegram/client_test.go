package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polyedge/internal/models"
)

type fakeBot struct {
	failures int
	sent     []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("bad gateway")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

type fakeHistory struct {
	sentAt map[string]time.Time
}

func (h *fakeHistory) NotifiedSince(_ context.Context, keys []string, since time.Time) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, k := range keys {
		if at, ok := h.sentAt[k]; ok && !at.Before(since) {
			out[k] = true
		}
	}
	return out, nil
}

func (h *fakeHistory) MarkNotified(_ context.Context, ns []models.Notification) error {
	for _, n := range ns {
		h.sentAt[n.Key] = n.SentAt
	}
	return nil
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func edge(match string, prev, curr float64) models.DeltaRecord {
	return models.DeltaRecord{
		Match:           match,
		ConvictionPrev:  prev,
		ConvictionCurr:  curr,
		DeltaConviction: curr - prev,
		DeltaVolume:     500,
		Velocity:        1.25,
		Phase:           models.PhaseEdgeForming,
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeMarkdownV2(tt.input))
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := NewClient("", "not-a-number", 3, time.Second)
	assert.Error(t, err)
}

func TestNotifyEdgesSendsDigest(t *testing.T) {
	bot := &fakeBot{}
	hist := &fakeHistory{sentAt: map[string]time.Time{}}
	c := newClient(bot, 42, 3, time.Millisecond).
		WithHistory(hist, 6*time.Hour).
		WithClock(func() time.Time { return t0 })

	require.NoError(t, c.NotifyEdges(context.Background(), []models.DeltaRecord{
		edge("ARSENAL vs CHELSEA", 0.42, 0.6),
	}))
	require.Len(t, bot.sent, 1)
	msg := bot.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "MarkdownV2", msg.ParseMode)
	assert.Contains(t, msg.Text, "*ARSENAL vs CHELSEA* \\[EDGE FORMING\\]")
	assert.Contains(t, msg.Text, "conviction 0\\.420 → 0\\.600 \\(\\+0\\.180\\)")
	assert.Contains(t, msg.Text, "2026\\-03\\-01 09:00:00")
	assert.Equal(t, t0, hist.sentAt["ARSENAL vs CHELSEA"])
}

func TestNotifyEdgesHonoursCooldown(t *testing.T) {
	bot := &fakeBot{}
	hist := &fakeHistory{sentAt: map[string]time.Time{
		"ARSENAL vs CHELSEA":   t0.Add(-time.Hour),
		"LIVERPOOL vs EVERTON": t0.Add(-7 * time.Hour),
	}}
	c := newClient(bot, 42, 3, time.Millisecond).
		WithHistory(hist, 6*time.Hour).
		WithClock(func() time.Time { return t0 })

	records := []models.DeltaRecord{
		edge("ARSENAL vs CHELSEA", 0.42, 0.6),
		edge("LIVERPOOL vs EVERTON", 0.1, 0.3),
	}
	require.NoError(t, c.NotifyEdges(context.Background(), records))
	require.Len(t, bot.sent, 1)
	assert.NotContains(t, bot.sent[0].Text, "ARSENAL")
	assert.Contains(t, bot.sent[0].Text, "LIVERPOOL vs EVERTON")

	// everything is now inside the cooldown
	require.NoError(t, c.NotifyEdges(context.Background(), records))
	assert.Len(t, bot.sent, 1)
}

func TestNotifyEdgesRetries(t *testing.T) {
	bot := &fakeBot{failures: 2}
	c := newClient(bot, 1, 3, time.Millisecond)
	require.NoError(t, c.NotifyEdges(context.Background(), []models.DeltaRecord{edge("A vs B", 0.1, 0.4)}))
	assert.Len(t, bot.sent, 1)

	bot = &fakeBot{failures: 5}
	c = newClient(bot, 1, 3, time.Millisecond)
	err := c.NotifyEdges(context.Background(), []models.DeltaRecord{edge("A vs B", 0.1, 0.4)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 retries")
}

func TestNotifyEdgesNothingToSend(t *testing.T) {
	bot := &fakeBot{}
	c := newClient(bot, 1, 3, time.Millisecond)
	require.NoError(t, c.NotifyEdges(context.Background(), nil))
	assert.Empty(t, bot.sent)
}

func TestFormatDigestTruncates(t *testing.T) {
	var records []models.DeltaRecord
	for i := 0; i < maxListed+3; i++ {
		records = append(records, edge(strings.Repeat("X", i+1), 0.5, 0.3))
	}
	records[0].NewEntity = true
	text := formatDigest(records, t0)
	assert.Contains(t, text, "\\.\\.\\. and 3 more")
	assert.Contains(t, text, "🆕")
	assert.Contains(t, text, "📉")
	assert.Equal(t, maxListed, strings.Count(text, "conviction "))
}

func TestSendError(t *testing.T) {
	bot := &fakeBot{}
	c := newClient(bot, 1, 1, time.Millisecond)
	require.NoError(t, c.SendError(context.Background(), errors.New("signal: missing input")))
	require.Len(t, bot.sent, 1)
	assert.Contains(t, bot.sent[0].Text, "Pipeline error")
}
