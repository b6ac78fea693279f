// Package telegram reports refresh failures and answers price queries via the
// Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/runesync/internal/dashboard"
	"github.com/rewired-gh/runesync/internal/logger"
	"github.com/rewired-gh/runesync/internal/models"
)

// SnapshotProvider builds snapshots for the tracked item.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, item models.TrackedItem) (*models.Snapshot, error)
}

// Client handles Telegram notifications and bot commands.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

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

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// answers /ping and /price. It returns immediately; the goroutine stops when
// ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, snapshots SnapshotProvider, item models.TrackedItem) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					reply := commandReply(ctx, update.Message.Command(), snapshots, item)
					if reply == "" {
						continue
					}
					msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply)
					msg.ParseMode = tgbotapi.ModeMarkdownV2
					if _, err := c.bot.Send(msg); err != nil {
						logger.Warn("Failed to answer /%s: %v", update.Message.Command(), err)
					}
				}
			}
		}
	}()
}

// commandReply returns the MarkdownV2 answer to a bot command, or "" for
// commands the bot does not know.
func commandReply(ctx context.Context, command string, snapshots SnapshotProvider, item models.TrackedItem) string {
	switch command {
	case "ping":
		return "Pong"
	case "price":
		snap, err := snapshots.GetSnapshot(ctx, item)
		switch {
		case errors.Is(err, models.ErrNoData):
			return "No price has been fetched yet\\."
		case errors.Is(err, models.ErrItemNotFound):
			return fmt.Sprintf("Unknown item: `%s`", escapeMarkdownV2(item.Name))
		case err != nil:
			logger.Error("Failed to build snapshot for /price: %v", err)
			return "Price unavailable, try again later\\."
		}
		return formatSnapshot(snap)
	}
	return ""
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a refresh error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	return c.sendMarkdownV2(formatError(cycleErr))
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	return c.sendMarkdownV2(formatRecovery(failureCount))
}

func formatError(cycleErr error) string {
	title := "Price refresh failed"
	if errors.Is(cycleErr, models.ErrItemNotFound) {
		title = "Tracked item not found, refreshes stopped"
	}
	return fmt.Sprintf("⚠️ *%s*\n`%s`", escapeMarkdownV2(title), escapeMarkdownV2(cycleErr.Error()))
}

func formatRecovery(failureCount int) string {
	return fmt.Sprintf("✅ *Price refresh recovered* after %d consecutive failure\\(s\\)", failureCount)
}

// formatSnapshot renders a snapshot as a Telegram MarkdownV2 message.
func formatSnapshot(snap *models.Snapshot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💰 *%s*\n", escapeMarkdownV2(dashboard.ProperTitle(snap.Item.Name))))
	b.WriteString(fmt.Sprintf("Price: *%s* %s\n",
		escapeMarkdownV2(dashboard.FormatPrice(snap.Latest.Price)), escapeMarkdownV2(snap.Unit)))
	b.WriteString(fmt.Sprintf("24h: %s %s\n", changeEmoji(snap.DailyChange), escapeMarkdownV2(dashboard.FormatChange(snap.DailyChange))))
	b.WriteString(fmt.Sprintf("7d: %s %s\n", changeEmoji(snap.WeeklyChange), escapeMarkdownV2(dashboard.FormatChange(snap.WeeklyChange))))
	b.WriteString(fmt.Sprintf("📅 Updated: %s", escapeMarkdownV2(snap.Latest.Timestamp.UTC().Format("2006-01-02 15:04 UTC"))))
	return b.String()
}

func changeEmoji(c *models.ChangeStat) string {
	switch {
	case c == nil:
		return "➖"
	case c.PercentDelta.IsNegative():
		return "📉"
	default:
		return "📈"
	}
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
