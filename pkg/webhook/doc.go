// Package webhook provides HMAC-SHA256 signing and verification for
// webhook payloads using a shared secret.
//
// The signature scheme binds the payload to a unix timestamp to prevent
// replay attacks, and is carried in a single header value of the form:
//
//	t=1716470400,v1=5257a869e7...
//
// Senders call Sign to produce the header value; receivers call Verify
// with the raw request body, the header value and a maximum age before
// parsing anything out of the payload.
package webhook
