package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/finsight/etl-orchestrator/internal/config"
	"github.com/finsight/etl-orchestrator/internal/metrics"
	"github.com/finsight/etl-orchestrator/pkg/types"
)

// Notifier dispatches run summaries to the configured endpoints. Dispatch
// is rate-limited and best-effort: a delivery failure is logged and
// counted, never fatal.
type Notifier struct {
	cfg     *config.Config
	log     *slog.Logger
	out     io.Writer
	client  *http.Client
	limiter *rate.Limiter

	// sendMail is swappable in tests.
	sendMail func(addr, from string, to []string, msg []byte) error
}

// NewNotifier creates a notifier writing console notifications to out.
func NewNotifier(cfg *config.Config, log *slog.Logger, out io.Writer) *Notifier {
	return &Notifier{
		cfg:     cfg,
		log:     log,
		out:     out,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 4),
		sendMail: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// Dispatch sends the result summary to every endpoint. endpoints is the
// merged set from config and the --notify flag; unknown names were
// rejected at validation time.
func (n *Notifier) Dispatch(ctx context.Context, endpoints []string, res *types.ExecutionResult) {
	summary := Summary(res)
	for _, ep := range endpoints {
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}
		var err error
		switch ep {
		case "console":
			_, err = fmt.Fprintln(n.out, summary)
		case "email":
			err = n.email(summary, res)
		case "slack":
			err = n.post(ctx, n.cfg.Notifications.SlackWebhookURL, map[string]string{"text": summary})
		case "webhook":
			err = n.post(ctx, n.cfg.Notifications.WebhookURL, res)
		}
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(ep, "error").Inc()
			n.log.Warn("notification failed", "endpoint", ep, "error", err.Error())
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(ep, "ok").Inc()
	}
}

func (n *Notifier) post(ctx context.Context, url string, payload any) error {
	if url == "" {
		return fmt.Errorf("no URL configured")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) email(summary string, res *types.ExecutionResult) error {
	nc := n.cfg.Notifications
	if nc.SMTPAddr == "" || nc.EmailFrom == "" || len(nc.EmailTo) == 0 {
		return fmt.Errorf("smtp not configured")
	}
	subject := "Pipeline run " + res.RunID
	body := summary + "\n"
	for _, sr := range res.Results {
		body += fmt.Sprintf("%s: %s\n", sr.Stage, sr.Status)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		nc.EmailFrom, strings.Join(nc.EmailTo, ", "), subject, body)
	return n.sendMail(nc.SMTPAddr, nc.EmailFrom, nc.EmailTo, []byte(msg))
}
