// Package tautan is the single chokepoint HTTP client for an application's
// REST data layer. Every call goes through one pipeline:
//
//   - Protected-route gate (rejects calls that need a token nobody holds)
//   - Opt-in FIFO response cache for GETs with per-entry TTL
//   - Sliding-window client-side rate limiting (bypassed in dev mode)
//   - Coordinated token refresh: concurrent 401s share one refresh
//   - Bounded retries with fixed or exponential backoff by error kind
//   - A closed error taxonomy (*APIError with ErrorKind)
//   - Optional circuit breaker, Prometheus metrics and OpenTelemetry spans
//
// Successful responses are normalized to an Envelope so callers never deal
// with raw bodies:
//
//	client := tautan.New(
//	    tautan.WithBaseURL("https://api.example.com"),
//	    tautan.WithRefreshURL("/auth/refresh"),
//	    tautan.WithTokenStore(store),
//	)
//	env, err := client.Get(ctx, "/entities", tautan.Cached())
//	if errors.Is(err, tautan.ErrAuthentication) {
//	    // session ended
//	}
//	items, err := tautan.DecodeData[[]Entity](env)
//
// Authentication lifecycle changes (login, logout, token refresh) are published
// on an EventBus; subscribe with client.Events().Subscribe.
package tautan
