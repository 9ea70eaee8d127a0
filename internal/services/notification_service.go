package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"audioconv/internal/metrics"
	"audioconv/internal/models"

	log "github.com/sirupsen/logrus"
)

// DownloadPath is the route prefix clients use to fetch outputs.
const DownloadPath = "/download/"

type Notifier interface {
	// NotifyConversion reports finished outputs. Delivery is best effort and
	// never returns an error to the caller.
	NotifyConversion(ctx context.Context, fileCount int, outputFiles []string)
}

// SlackNotifier posts a text message to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	baseURL    string
	client     *http.Client
	metrics    *metrics.Collector
}

// NewSlackNotifier creates a notifier. An empty webhookURL disables delivery.
func NewSlackNotifier(webhookURL, baseURL string, timeout time.Duration, m *metrics.Collector) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		metrics:    m,
	}
}

// Enabled reports whether a webhook is configured.
func (n *SlackNotifier) Enabled() bool {
	return n.webhookURL != ""
}

func (n *SlackNotifier) NotifyConversion(ctx context.Context, fileCount int, outputFiles []string) {
	if !n.Enabled() {
		log.Debug("Slack webhook URL not configured, skipping notification")
		n.metrics.RecordNotification(metrics.OutcomeSkipped)
		return
	}
	if err := n.send(ctx, BuildConversionMessage(n.baseURL, fileCount, outputFiles)); err != nil {
		log.Warnf("Failed to send Slack notification: %v", err)
		n.metrics.RecordNotification(metrics.OutcomeFailed)
		return
	}
	log.Info("Slack notification sent successfully")
	n.metrics.RecordNotification(metrics.OutcomeSent)
}

func (n *SlackNotifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", models.ErrNotification, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", models.ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrNotification, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: webhook returned status %d", models.ErrNotification, resp.StatusCode)
	}
	return nil
}

// DownloadLinks turns output references into absolute download URLs.
func DownloadLinks(baseURL string, outputFiles []string) []string {
	base := strings.TrimRight(baseURL, "/")
	links := make([]string, 0, len(outputFiles))
	for _, ref := range outputFiles {
		links = append(links, base+DownloadPath+url.PathEscape(path.Base(ref)))
	}
	return links
}

// BuildConversionMessage composes the human-readable completion message.
func BuildConversionMessage(baseURL string, fileCount int, outputFiles []string) string {
	return fmt.Sprintf("Audio conversion complete!\n\nConverted files: %02d\nDownload links: %s",
		fileCount, strings.Join(DownloadLinks(baseURL, outputFiles), " "))
}

var _ Notifier = (*SlackNotifier)(nil)
