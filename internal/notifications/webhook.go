package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kjannette/oracle-backend/internal/backoff"
	"github.com/kjannette/oracle-backend/internal/models"
)

const sendAttempts = 3

// Sender posts job lifecycle events to a Discord/Slack-style webhook.
// Without a webhook URL it degrades to console logging.
type Sender struct {
	webhookURL  string
	serviceName string
	httpClient  *http.Client
	backoffBase time.Duration
}

func NewSender(webhookURL, serviceName string) *Sender {
	if serviceName == "" {
		serviceName = "TokenOracle"
	}
	return &Sender{
		webhookURL:  webhookURL,
		serviceName: serviceName,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		backoffBase: 1 * time.Second,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}

// JobCompleted announces a finished backfill job.
func (s *Sender) JobCompleted(job models.BackfillJob) {
	s.Send(fmt.Sprintf("Backfill completed: %s on %s (job %s)", job.Token, job.Network, job.ID))
}

// JobFailed announces a failed backfill job.
func (s *Sender) JobFailed(job models.BackfillJob, err error) {
	s.Send(fmt.Sprintf("Backfill FAILED: %s on %s (job %s): %v", job.Token, job.Network, job.ID, err))
}

func (s *Sender) Send(msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.serviceName, msg)
	fmt.Printf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), formatted)

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		fmt.Printf("[NOTIFY] marshal: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The executor paces each failure; the loop supplies the retries.
	exec := backoff.NewExecutor(s.backoffBase)
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		err = exec.Execute(ctx, func() error { return s.post(ctx, body) })
		if err == nil {
			return
		}
	}
	fmt.Printf("[NOTIFY] Failed to deliver after %d attempts: %v\n", sendAttempts, err)
}

func (s *Sender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.serviceName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.serviceName,
	}
}
