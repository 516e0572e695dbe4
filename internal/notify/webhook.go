package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/internal/report"
)

const webhookDefaultMaxBytes = 20000

// webhook is the shared bot-webhook transport: the three providers differ
// only in payload shape and markup flavor.
type webhook struct {
	name     string
	url      string
	flavor   report.Flavor
	maxBytes int
	payload  func(text string) any
	http     *http.Client
}

func newFeishu(cfg config.WebhookChannelConfig) *webhook {
	return newWebhook("feishu", cfg, report.FlavorPlain, func(text string) any {
		return map[string]any{
			"msg_type": "text",
			"content":  map[string]string{"text": text},
		}
	})
}

func newDingTalk(cfg config.WebhookChannelConfig) *webhook {
	return newWebhook("dingtalk", cfg, report.FlavorMarkdown, func(text string) any {
		return map[string]any{
			"msgtype":  "markdown",
			"markdown": map[string]string{"title": "TrendRadar", "text": text},
		}
	})
}

func newWeWork(cfg config.WebhookChannelConfig) *webhook {
	return newWebhook("wework", cfg, report.FlavorMarkdown, func(text string) any {
		return map[string]any{
			"msgtype":  "markdown",
			"markdown": map[string]string{"content": text},
		}
	})
}

func newWebhook(name string, cfg config.WebhookChannelConfig, flavor report.Flavor, payload func(string) any) *webhook {
	max := cfg.MaxBytes
	if max <= 0 {
		max = webhookDefaultMaxBytes
	}
	return &webhook{
		name:     name,
		url:      cfg.URL,
		flavor:   flavor,
		maxBytes: max,
		payload:  payload,
		http:     &http.Client{},
	}
}

func (w *webhook) Name() string          { return w.name }
func (w *webhook) Flavor() report.Flavor { return w.flavor }
func (w *webhook) MaxBytes() int         { return w.maxBytes }

func (w *webhook) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(w.payload(text))
	if err != nil {
		return fmt.Errorf("%s: encode payload: %w", w.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", w.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", w.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", w.name, resp.StatusCode, snippet)
	}
	// Bot webhooks report provider-side rejections with HTTP 200 and an
	// error code in the JSON body.
	var result struct {
		Code    int    `json:"code"`
		ErrCode int    `json:"errcode"`
		Msg     string `json:"msg"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&result); err == nil {
		if result.Code != 0 {
			return fmt.Errorf("%s: provider error %d: %s", w.name, result.Code, result.Msg)
		}
		if result.ErrCode != 0 {
			return fmt.Errorf("%s: provider error %d: %s", w.name, result.ErrCode, result.ErrMsg)
		}
	}
	return nil
}
