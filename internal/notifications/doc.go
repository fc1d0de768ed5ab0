// Package notifications delivers analysis events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Dedicated methods cover the interesting analysis milestones, fake
// verdicts above the alert floor in particular, so gateway and intake code can
// emit consistent, user-friendly messages without duplicating HTTP glue.
//
// Extend this package if you need alternative transports; all analysis code
// depends only on the simple Service interface.
package notifications
