package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"macroblock/internal/config"
)

const userAgent = "Macroblock-Go/0.1.0"

// Service defines the notification surface exposed to analysis components.
type Service interface {
	NotifyFakeDetected(ctx context.Context, filename, mediaKind string, confidence float64) error
	NotifyIntakeStarted(ctx context.Context, root string, count int) error
	NotifyIntakeCompleted(ctx context.Context, scanned, flagged int, duration time.Duration) error
	NotifyDetectorDegraded(ctx context.Context, name, detail string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyFakeDetected(ctx context.Context, filename, mediaKind string, confidence float64) error {
	filename = strings.TrimSpace(filename)
	mediaKind = strings.TrimSpace(mediaKind)
	if mediaKind == "" {
		mediaKind = "unknown"
	}
	data := payload{
		title:    "Macroblock - Fake Detected",
		message:  fmt.Sprintf("🚨 Likely fake %s: %s (%.0f%% confidence)", mediaKind, filename, confidence*100),
		tags:     []string{"macroblock", "fake", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIntakeStarted(ctx context.Context, root string, count int) error {
	root = strings.TrimSpace(root)
	data := payload{
		title:   "Macroblock - Intake Started",
		message: fmt.Sprintf("📥 Scanning %d media files under %s", count, root),
		tags:    []string{"macroblock", "intake", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIntakeCompleted(ctx context.Context, scanned, flagged int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var message string
	var title string
	var priority string
	if flagged == 0 {
		title = "Macroblock - Intake Complete"
		message = fmt.Sprintf("✅ Intake complete: %d files analyzed in %s, nothing flagged", scanned, durationText)
	} else {
		title = "Macroblock - Intake Complete (fakes flagged)"
		message = fmt.Sprintf("🚨 Intake complete: %d of %d files flagged as likely fakes in %s", flagged, scanned, durationText)
		priority = "high"
	}

	data := payload{
		title:    title,
		message:  message,
		tags:     []string{"macroblock", "intake", "completed"},
		priority: priority,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDetectorDegraded(ctx context.Context, name, detail string) error {
	name = strings.TrimSpace(name)
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = "not loaded"
	}
	data := payload{
		title:   "Macroblock - Detector Degraded",
		message: fmt.Sprintf("⚠️ Detector %s unavailable: %s", name, detail),
		tags:    []string{"macroblock", "detector", "degraded"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Macroblock - Error",
		message:  builder.String(),
		tags:     []string{"macroblock", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Macroblock - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"macroblock", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyFakeDetected(context.Context, string, string, float64) error    { return nil }
func (noopService) NotifyIntakeStarted(context.Context, string, int) error               { return nil }
func (noopService) NotifyIntakeCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyDetectorDegraded(context.Context, string, string) error         { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
