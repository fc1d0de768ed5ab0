package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"macroblock/internal/detector"
	"macroblock/internal/media"
	"macroblock/internal/score"
	"macroblock/internal/services"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
)

// Detector scores items by calling a remote model service.
type Detector struct {
	name       string
	modality   media.Kind
	endpoint   string
	device     string
	normalizer score.Normalizer
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)

	mu     sync.Mutex
	loaded bool
}

// Option customizes the detector.
type Option func(*Detector)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Detector) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(d *Detector) {
		d.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(d *Detector) {
		d.retryBaseDelay = baseDelay
		d.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(d *Detector) {
		d.sleeper = sleeper
	}
}

// FromManifest builds a remote detector from a validated manifest.
func FromManifest(m detector.Manifest, opts ...Option) *Detector {
	timeout := defaultHTTPTimeout
	if m.TimeoutSeconds > 0 {
		timeout = time.Duration(m.TimeoutSeconds) * time.Second
	}
	d := &Detector{
		name:             m.Name,
		modality:         m.Kind(),
		endpoint:         strings.TrimRight(m.Endpoint, "/"),
		device:           strings.TrimSpace(m.Device),
		normalizer:       m.Normalizer(),
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return d
}

// Name implements detector.Detector.
func (d *Detector) Name() string { return d.name }

// Modality implements detector.Detector.
func (d *Detector) Modality() media.Kind { return d.modality }

// Device reports the manifest's advisory device string.
func (d *Detector) Device() string { return d.device }

// Load verifies the model service is reachable and its weights are loaded.
// The service owns the weight lifecycle; loading here is a readiness probe,
// retried like any other transient failure. Loading twice is a no-op.
func (d *Detector) Load(ctx context.Context) error {
	d.mu.Lock()
	alreadyLoaded := d.loaded
	d.mu.Unlock()
	if alreadyLoaded {
		return nil
	}

	err := d.withRetry(ctx, "load", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/healthz", nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := d.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusMultipleChoices {
			return statusErrorFrom(resp)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrDetectorUnavailable, "detector", d.name, "service not ready", err)
	}
	d.mu.Lock()
	d.loaded = true
	d.mu.Unlock()
	return nil
}

// Unload marks the detector unloaded. The remote service keeps its own
// weights; there is nothing to release client-side.
func (d *Detector) Unload(context.Context) error {
	d.mu.Lock()
	d.loaded = false
	d.mu.Unlock()
	return nil
}

type inferRequest struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

type inferResponse struct {
	FakeProbability  *float64  `json:"fake_probability"`
	Probabilities    []float64 `json:"probabilities"`
	ProcessingTimeMS float64   `json:"processing_time_ms"`
	Error            string    `json:"error"`
}

// Infer posts the item to the model service and normalizes its raw scores.
func (d *Detector) Infer(ctx context.Context, item detector.Item) (score.Detection, error) {
	if len(item.Data) == 0 {
		return score.Detection{}, services.Wrap(services.ErrValidation, "detector", d.name, "empty payload", nil)
	}

	payload := inferRequest{
		Filename: item.Path,
		Data:     base64.StdEncoding.EncodeToString(item.Data),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return score.Detection{}, fmt.Errorf("detector %s: encode request: %w", d.name, err)
	}

	var decoded inferResponse
	err = d.withRetry(ctx, "infer", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/infer", bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
			return &statusError{
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
				RetryAfter: retryAfter,
			}
		}
		decoded = inferResponse{}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if decoded.Error != "" {
			return fmt.Errorf("service error: %s", decoded.Error)
		}
		return nil
	})
	if err != nil {
		return score.Detection{}, fmt.Errorf("detector %s: %w", d.name, err)
	}

	raw := score.RawOutput{
		FakeProbability:  decoded.FakeProbability,
		Probabilities:    decoded.Probabilities,
		ProcessingTimeMS: decoded.ProcessingTimeMS,
	}
	return d.normalizer.Normalize(d.name, raw)
}

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func statusErrorFrom(resp *http.Response) *statusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
	return &statusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: retryAfter,
	}
}

// withRetry runs fn with capped exponential backoff on transient failures.
func (d *Detector) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := d.retryAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		delay, retry := d.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return err
		}
		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

func (d *Detector) retryAttempts() int {
	if d.retryMaxAttempts <= 0 {
		return 1
	}
	return d.retryMaxAttempts
}

func (d *Detector) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts {
		return 0, false
	}
	if err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return d.capDelay(statusErr.RetryAfter), true
			}
			return d.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return d.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Connection resets and refusals while the service restarts are
		// worth retrying; context errors were filtered above.
		return d.backoffDelay(attempt), true
	}

	return 0, false
}

// backoffDelay doubles the base delay per attempt, capped at the max delay.
func (d *Detector) backoffDelay(attempt int) time.Duration {
	base := d.retryBaseDelay
	if base < 0 {
		base = defaultRetryBaseDelay
	}
	if base == 0 {
		return 0
	}
	maxDelay := d.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return d.capDelay(delay)
}

func (d *Detector) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := d.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (d *Detector) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if d.sleeper != nil {
		d.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
