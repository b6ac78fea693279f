package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rewired-gh/runesync/internal/models"
)

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
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// chat ID is parsed before the bot token is checked against the API
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

type stubSnapshots struct {
	snap *models.Snapshot
	err  error
}

func (s stubSnapshots) GetSnapshot(context.Context, models.TrackedItem) (*models.Snapshot, error) {
	return s.snap, s.err
}

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Item:   models.Item{ID: "20997", Name: "twisted bow"},
		Unit:   "gp",
		Latest: models.PriceSample{ItemID: "20997", Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), Price: 1450000000},
		DailyChange: &models.ChangeStat{
			PercentDelta: decimal.RequireFromString("-2.5"),
		},
	}
}

func TestCommandReply(t *testing.T) {
	item := models.TrackedItem{Name: "Twisted bow", Unit: "gp"}
	tests := []struct {
		name      string
		command   string
		snapshots stubSnapshots
		want      string
	}{
		{"ping", "ping", stubSnapshots{}, "Pong"},
		{"unknown command", "start", stubSnapshots{}, ""},
		{"no data", "price", stubSnapshots{err: models.ErrNoData}, "No price has been fetched yet\\."},
		{"unknown item", "price", stubSnapshots{err: fmt.Errorf("%w: x", models.ErrItemNotFound)}, "Unknown item: `Twisted bow`"},
		{"store failure", "price", stubSnapshots{err: errors.New("boom")}, "Price unavailable, try again later\\."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, commandReply(context.Background(), tt.command, tt.snapshots, item))
		})
	}

	reply := commandReply(context.Background(), "price", stubSnapshots{snap: testSnapshot()}, item)
	assert.Contains(t, reply, "Twisted Bow")
}

func TestFormatSnapshot(t *testing.T) {
	msg := formatSnapshot(testSnapshot())
	lines := strings.Split(msg, "\n")
	assert.Len(t, lines, 5)
	assert.Equal(t, "💰 *Twisted Bow*", lines[0])
	assert.Equal(t, "Price: *1450\\.0M* gp", lines[1])
	assert.Equal(t, "24h: 📉 \\-2\\.5%", lines[2])
	assert.Equal(t, "7d: ➖ N/A", lines[3])
	assert.Equal(t, "📅 Updated: 2026\\-03\\-10 12:00 UTC", lines[4])
}

func TestFormatErrorAndRecovery(t *testing.T) {
	msg := formatError(fmt.Errorf("failed to fetch latest price: %w", models.ErrUpstream))
	assert.True(t, strings.HasPrefix(msg, "⚠️ *Price refresh failed*"), msg)

	msg = formatError(fmt.Errorf("%w: \"Twisted bw\"", models.ErrItemNotFound))
	assert.Contains(t, msg, "refreshes stopped")

	assert.Equal(t, "✅ *Price refresh recovered* after 3 consecutive failure\\(s\\)", formatRecovery(3))
}
