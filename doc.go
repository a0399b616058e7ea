// Package nsgateway provides a query execution and response shaping
// gateway for NetSuite's REST and SuiteQL APIs.
//
// NetSuite's API surface is awkward to consume directly: every call must
// be OAuth 1.0a signed per request, pages are capped at 1,000 records,
// the service throttles aggressively, and report-style questions require
// joining several record types the API only exposes separately. nsgateway
// puts one coherent surface in front of all of that:
//
//   - Request signing (pkg/signer): OAuth 1.0a HMAC-SHA256 headers built
//     per call from a validated credential.
//   - Resilient transport (pkg/upstream): tuned HTTP transport, token
//     bucket rate limiting, retry with exponential backoff on transient
//     failures, and strict-order cursor pagination.
//   - Response caching (pkg/cache): TTL-bounded in-memory cache keyed by
//     full request identity, with per-entity invalidation.
//   - Query planning (pkg/query): validated listing queries and
//     multi-entity report plans with localized field aliases.
//   - Report assembly (pkg/report): concurrent fan-out of a plan's
//     queries and an in-memory hash join into flat records.
//   - Response shaping (pkg/format): one canonical record set projected
//     into multiple payload shapes, including locale dictionaries that
//     rename fields for downstream spreadsheet users.
//
// # Quick Start
//
//	cfg := config.FromEnv()
//	svc, err := gateway.NewService(cfg, logger.Get())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	payload, err := svc.Fetch(ctx,
//	    query.Spec{Entity: "salesorder", Limit: 50},
//	    format.Spec{Type: format.TypeFlat})
//
// The cmd/nsgateway CLI wraps the same service for ad-hoc queries and
// cache administration.
package nsgateway
