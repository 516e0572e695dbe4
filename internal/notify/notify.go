// Package notify delivers rendered reports to the configured channels.
//
// Each channel declares its markup flavor and byte ceiling; the caller
// renders and packs per channel, then hands the chunks to Send. A shared
// token-bucket limiter throttles across all channels so a multi-chunk
// broadcast cannot hammer the provider APIs.
package notify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/internal/report"
	"github.com/wufuliang561/TrendRadar/pkg/logx"
)

const sendTimeout = 15 * time.Second

// Channel is one delivery target.
type Channel interface {
	Name() string
	Flavor() report.Flavor
	MaxBytes() int
	Send(ctx context.Context, text string) error
}

// Build assembles every configured channel. Channels missing required
// settings are skipped with a warning rather than failing the run.
func Build(cfg config.ChannelsConfig, log logx.Logger) []Channel {
	var out []Channel

	if tg := cfg.Telegram; tg != nil {
		if tg.Token == "" || tg.ChatID == 0 {
			log.Warn("telegram channel missing token or chat_id, skipping")
		} else if ch, err := newTelegram(*tg); err != nil {
			log.Warn("telegram channel init failed", logx.Err(err))
		} else {
			out = append(out, ch)
		}
	}
	if fs := cfg.Feishu; fs != nil && fs.URL != "" {
		out = append(out, newFeishu(*fs))
	}
	if dt := cfg.DingTalk; dt != nil && dt.URL != "" {
		out = append(out, newDingTalk(*dt))
	}
	if ww := cfg.WeWork; ww != nil && ww.URL != "" {
		out = append(out, newWeWork(*ww))
	}
	if nf := cfg.Ntfy; nf != nil {
		if nf.Topic == "" {
			log.Warn("ntfy channel missing topic, skipping")
		} else {
			out = append(out, newNtfy(*nf))
		}
	}
	if em := cfg.Email; em != nil {
		if em.Host == "" || em.From == "" || len(em.To) == 0 {
			log.Warn("email channel missing host, from or to, skipping")
		} else {
			out = append(out, newEmail(*em))
		}
	}

	return out
}

// Service fans a packed report out to every channel, sequentially per
// channel, throttled across all of them.
type Service struct {
	channels []Channel
	limiter  *rate.Limiter
	log      logx.Logger
}

func NewService(channels []Channel, ratePerSec int, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Service{
		channels: channels,
		// Burst = rate per sec, so the first chunk of each send goes out
		// without waiting.
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

func (s *Service) Channels() []Channel { return s.channels }

// Broadcast delivers pre-rendered chunks, keyed by channel name.
// Chunks for one channel go out in order; a failed chunk
// aborts the rest of that channel's chunks but not the other channels.
// Returns the number of channels fully delivered.
func (s *Service) Broadcast(ctx context.Context, messages map[string][]string) int {
	sent := 0
	for _, ch := range s.channels {
		chunks := messages[ch.Name()]
		if len(chunks) == 0 {
			continue
		}
		if err := s.sendAll(ctx, ch, chunks); err != nil {
			s.log.Error("channel delivery failed", logx.String("channel", ch.Name()), logx.Err(err))
			continue
		}
		sent++
		s.log.Info("report delivered", logx.String("channel", ch.Name()), logx.Int("chunks", len(chunks)))
	}
	return sent
}

func (s *Service) sendAll(ctx context.Context, ch Channel, chunks []string) error {
	for i, chunk := range chunks {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		cctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := ch.Send(cctx, chunk)
		cancel()
		if err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}
