// Package trsync exports a Trade Republic account's transaction history and
// cash position to local JSON or CSV artifacts in one shot.
//
// # Architecture
//
// A run is two sequential tasks, each over its own websocket session:
//
//	┌─────────────────────────────────────┐
//	│           cmd/trsync                │  Config, login, run
//	│    (resolve token, orchestrate)     │  orchestration
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌──────────────────┬──────────────────┐
//	│     timeline     │     profile      │  Cursor pagination,
//	│  (transactions)  │  (cash records)  │  detail enrichment
//	└──────────────────┴──────────────────┘
//	           ↓ request over
//	┌─────────────────────────────────────┐
//	│             channel                 │  Text-framed protocol,
//	│ (connect, sub/unsub, correlation)   │  one request in flight
//	└─────────────────────────────────────┘
//	           ↓ frames through
//	┌─────────────────────────────────────┐
//	│        frame → normalize → sink     │  Fail-soft extraction,
//	│                                     │  flatten/coerce, write
//	└─────────────────────────────────────┘
//
// The channel layer owns the wire protocol: a connect handshake followed by
// strictly sequential subscribe/unsubscribe round trips with monotonically
// increasing request ids. The timeline and profile layers issue typed
// subscriptions over it and accumulate records in server order. Records keep
// their JSON key order end to end so that exported columns are deterministic.
//
// Supporting packages: auth runs the 2FA login flow that produces the session
// token, config loads and validates the YAML run configuration, errors
// classifies failures as transient, invalid, or fatal, pkg/retry applies
// jittered exponential backoff around transient failures, and metric keeps
// Prometheus counters that are logged as a run summary at exit.
package trsync
