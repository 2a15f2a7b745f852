package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CommandHandler answers an inbound chat command with reply text. An empty
// reply suppresses the response.
type CommandHandler func(ctx context.Context, command string) string

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// StartPolling long-polls getUpdates and dispatches command messages to the
// handler. Blocks until ctx is cancelled. Each command runs on the calling
// goroutine; this is the on-demand query path and carries no shared state.
func (n *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	var offset int64
	// Long-poll timeout plus slack; a shorter client timeout would abort
	// healthy idle polls.
	client := &http.Client{Timeout: 35 * time.Second}
	logger := n.logger.With().Str("component", "telegram_poller").Logger()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("command polling stopped")
			return
		default:
		}

		url := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=30", n.baseURL, n.botToken, offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			logger.Error().Err(err).Msg("create polling request")
			sleepCtx(ctx, 5*time.Second)
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("polling request failed")
			sleepCtx(ctx, 5*time.Second)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			logger.Warn().Err(err).Msg("read polling response")
			continue
		}

		var result struct {
			OK     bool             `json:"ok"`
			Result []telegramUpdate `json:"result"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			logger.Warn().Err(err).Msg("decode polling response")
			continue
		}

		for _, update := range result.Result {
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			text := strings.TrimSpace(update.Message.Text)
			if !strings.HasPrefix(text, "/") {
				continue
			}
			logger.Info().Str("command", text).Msg("received command")
			reply := handler(ctx, text)
			if reply == "" {
				continue
			}
			if err := n.sendText(ctx, reply); err != nil {
				logger.Error().Err(err).Msg("send command reply")
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
