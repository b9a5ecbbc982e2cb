package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Harshitk-cp/vigil/internal/buildconfig"
	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultWebhookTimeout = 15 * time.Second
	maxResponseBytes      = 1 << 20
)

// Webhook hands actions to an external automation endpoint. The endpoint
// receives {"action", "params"} and may answer with
// {"status", "detail", "side_effects": [...]}.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhook(url string, logger *zap.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		logger: logger,
	}
}

type webhookRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

func (w *Webhook) Execute(ctx context.Context, action string, params map[string]any) (*domain.ActionResult, error) {
	body, err := json.Marshal(webhookRequest{Action: action, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildconfig.UserAgent())

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("action webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read action webhook response: %w", err)
	}

	res := &domain.ActionResult{
		Action:      action,
		Status:      domain.ActionStatusSucceeded,
		SideEffects: []string{},
		ExecutedAt:  time.Now().UTC(),
	}
	if resp.StatusCode >= 300 {
		res.Status = domain.ActionStatusFailed
		res.Detail = fmt.Sprintf("webhook returned %d", resp.StatusCode)
	}

	if gjson.ValidBytes(respBody) {
		parsed := gjson.ParseBytes(respBody)
		if s := parsed.Get("status"); s.Type == gjson.String && s.String() != "" && resp.StatusCode < 300 {
			res.Status = s.String()
		}
		if d := parsed.Get("detail"); d.Type == gjson.String {
			res.Detail = d.String()
		}
		for _, se := range parsed.Get("side_effects").Array() {
			if se.Type == gjson.String {
				res.SideEffects = append(res.SideEffects, se.String())
			}
		}
	}

	w.logger.Info("action dispatched",
		zap.String("action", action),
		zap.Int("status_code", resp.StatusCode),
		zap.String("status", res.Status))
	return res, nil
}
