package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

// TelegramNotifier delivers winner congratulations and operator summaries
// through the Telegram Bot API.
type TelegramNotifier struct {
	BotToken       string
	OperatorChatID int64
	HTTPClient     *http.Client
}

func NewTelegramNotifier() *TelegramNotifier {
	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable is required")
	}
	operatorID, err := strconv.ParseInt(os.Getenv("TELEGRAM_OPERATOR_CHAT_ID"), 10, 64)
	if err != nil {
		log.Fatal("TELEGRAM_OPERATOR_CHAT_ID environment variable is required")
	}

	return &TelegramNotifier{
		BotToken:       botToken,
		OperatorChatID: operatorID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, telegramID int64, message string) error {
	return n.sendMessage(ctx, telegramID, message)
}

func (n *TelegramNotifier) NotifyOperator(ctx context.Context, message string) error {
	return n.sendMessage(ctx, n.OperatorChatID, message)
}

func (n *TelegramNotifier) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode Telegram message: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.BotToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create Telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Telegram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("Telegram API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
