package notify

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/internal/report"
)

const telegramDefaultMaxBytes = 4000

type telegram struct {
	bot      *tele.Bot
	chatID   int64
	maxBytes int
}

func newTelegram(cfg config.TelegramChannelConfig) (*telegram, error) {
	// Send-only: no poller, updates are never consumed.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	max := cfg.MaxBytes
	if max <= 0 {
		max = telegramDefaultMaxBytes
	}
	return &telegram{bot: b, chatID: cfg.ChatID, maxBytes: max}, nil
}

func (t *telegram) Name() string          { return "telegram" }
func (t *telegram) Flavor() report.Flavor { return report.FlavorHTML }
func (t *telegram) MaxBytes() int         { return t.maxBytes }

func (t *telegram) Send(ctx context.Context, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(&tele.Chat{ID: t.chatID}, text, &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
		})
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		return nil
	}
}
