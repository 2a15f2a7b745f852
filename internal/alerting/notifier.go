package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"peakwatch/internal/levels"
)

// Notification carries the structured outcome of one alert tick. Level and
// price fields are optional: nil means the underlying value was absent, not
// zero.
type Notification struct {
	Time               time.Time
	Symbol             string
	Interval           string
	EpsPct             float64
	Min                *levels.Level
	Max                *levels.Level
	Price              *float64
	Balance            *float64
	BalanceUnavailable bool
	NearMin            bool
	NearMax            bool
	Diagnostic         string
}

// Notifier delivers alert payloads to the configured destination.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify renders the notification and posts it via sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	return n.sendText(ctx, RenderMessage(note))
}

func (n *TelegramNotifier) sendText(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("chat_id", n.chatID).Msg("alert dispatched (Telegram)")
	return nil
}

// RenderMessage formats a notification as the alert text.
func RenderMessage(note Notification) string {
	if note.Diagnostic != "" {
		return "⚠️ " + note.Diagnostic
	}

	var flags []string
	if note.NearMin {
		flags = append(flags, "🔥 near MIN")
	}
	if note.NearMax {
		flags = append(flags, "❄️ near MAX")
	}
	flagTxt := ""
	if len(flags) > 0 {
		flagTxt = " | " + strings.Join(flags, " & ")
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("📊 %s %sm — peaks (cluster %.1f%%)%s\n", note.Symbol, note.Interval, note.EpsPct*100, flagTxt))
	builder.WriteString(fmt.Sprintf("• Min: %s (x%d)\n", FormatPrice(levelPrice(note.Min)), levelSupport(note.Min)))
	builder.WriteString(fmt.Sprintf("• Max: %s (x%d)", FormatPrice(levelPrice(note.Max)), levelSupport(note.Max)))
	if note.Balance != nil {
		builder.WriteString(fmt.Sprintf("\n💰 USDT balance: %s", FormatPrice(note.Balance)))
	} else if note.BalanceUnavailable {
		builder.WriteString("\n⚠️ Balance unavailable: check keys, Read permission, IP whitelist")
	}
	return builder.String()
}

// FormatPrice renders an optional price with thousands separated by spaces and
// four decimals. Absent values print as n/a.
func FormatPrice(v *float64) string {
	if v == nil {
		return "n/a"
	}

	s := fmt.Sprintf("%.4f", *v)
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	neg := false
	if strings.HasPrefix(intPart, "-") {
		neg = true
		intPart = intPart[1:]
	}

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	out := strings.Join(groups, " ") + frac
	if neg {
		out = "-" + out
	}
	return out
}

func levelPrice(l *levels.Level) *float64 {
	if l == nil {
		return nil
	}
	return &l.Price
}

func levelSupport(l *levels.Level) int {
	if l == nil {
		return 0
	}
	return l.Support
}

var _ Notifier = (*TelegramNotifier)(nil)
