// Package chronicle is a small client for the Google SecOps (Chronicle)
// v1alpha REST API. It covers the read-only calls the MCP toolkit needs:
// UDM search, the alerts view, entity summaries, detection rules, and IoC
// matches.
//
// A Client is bound to one Instance (project, customer, region) and is safe
// for concurrent use. Client.WithInstance derives a client for another tenant
// that shares the HTTP transport, token source, and rate limiter.
//
//	cli, err := chronicle.New(ctx, chronicle.InstanceFromEnv(os.LookupEnv))
//	if err != nil {
//	    return err
//	}
//	res, err := cli.SearchUDM(ctx, `metadata.event_type = "NETWORK_CONNECTION"`,
//	    chronicle.LastHours(time.Now(), 24), 5)
//
// Requests are rate limited client side, carry an X-Request-Id header taken
// from the context, and are retried on 429 and 5xx responses with capped
// exponential backoff that honours Retry-After. Non-2xx responses surface as
// *APIError.
package chronicle
