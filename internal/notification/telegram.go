package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// TelegramNotifier posts alerts to a chat through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiURL   string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier for chatID.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiURL:   "https://api.telegram.org",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       telegramText(alert),
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: %s alert: unexpected status %d", alert.Kind, resp.StatusCode)
	}
	log.Printf("[telegram] sent %s alert: %s", alert.Kind, alert.Title)
	return nil
}

func alertEmoji(a Alert) string {
	switch a.Kind {
	case "ENTRY":
		return "💼"
	case "TP1_HIT":
		return "🎯"
	case "EXIT":
		if a.Trade != nil && a.Trade.PnLINR < 0 {
			return "🔻"
		}
		return "🏁"
	case "SUMMARY":
		return "📊"
	}
	switch a.Level {
	case AlertWarning:
		return "⚠️"
	case AlertCritical:
		return "🚨"
	}
	return "ℹ️"
}

// telegramText renders the alert as a MarkdownV2 message. Trade alerts get a
// monospace block with the position levels and, once closed, the P&L.
func telegramText(a Alert) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *%s*", alertEmoji(a), escapeMarkdown(a.Title))
	if a.Message != "" {
		sb.WriteString("\n\n")
		sb.WriteString(escapeMarkdown(a.Message))
	}
	if tr := a.Trade; tr != nil {
		lines := []string{
			fmt.Sprintf("order  %s", tr.OrderID),
			fmt.Sprintf("leg    %s %d", tr.Side, tr.Strike),
			fmt.Sprintf("entry  %.2f x %d", tr.Entry, tr.Quantity),
			fmt.Sprintf("sl     %.2f", tr.SL),
			fmt.Sprintf("tp1    %.2f", tr.TP1),
		}
		if tr.Closed() {
			lines = append(lines,
				fmt.Sprintf("exit   %.2f (%s)", tr.Exit, tr.Reason),
				fmt.Sprintf("pnl    %+.2f pts / %+.2f INR", tr.PnLPoints, tr.PnLINR))
		}
		sb.WriteString("\n\n```\n")
		sb.WriteString(escapeCode(strings.Join(lines, "\n")))
		sb.WriteString("\n```")
	}
	return sb.String()
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!\\"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(specials, s[i]) >= 0 {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// escapeCode escapes the two characters MarkdownV2 reserves inside code blocks.
func escapeCode(s string) string {
	return strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(s)
}
