// Package billing exposes the subscription engine over HTTP: plan
// listing, subscribe/cancel/tier-change/auto-renew operations, creator
// earnings, and the payment gateway webhook endpoint.
//
// Authentication is the host application's concern; its middleware
// stores an entitlement.Principal in the request context via
// SetPrincipalToContext, and the module's protected routes reject
// requests without one. The webhook route authenticates deliveries by
// signature instead.
package billing
