// Package remote implements the Detector interface over HTTP model
// services.
//
// Each remote detector talks to one inference microservice described by a
// manifest: GET /healthz verifies the service is up and its weights are
// loaded, POST /infer scores a single payload. Transient failures (429,
// 5xx, timeouts) are retried with capped exponential backoff and
// Retry-After support; everything else fails fast so the ensemble can
// exclude the model and move on.
package remote
