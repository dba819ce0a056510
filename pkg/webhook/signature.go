package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the conventional header name carrying the signature value.
const Header = "X-Signature"

// futureSkew is the tolerated clock skew for timestamps ahead of the
// receiver's clock.
const futureSkew = time.Minute

// Sign computes the signature header value for a payload at the given
// instant. The signed message is "<unix-ts>.<payload>" so the timestamp
// cannot be swapped without invalidating the signature.
func Sign(secret string, payload []byte, at time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, compute(secret, ts, payload)), nil
}

// Verify authenticates a payload against a signature header value.
// maxAge of zero disables the replay window check. The comparison is
// constant-time.
func Verify(secret string, payload []byte, header string, maxAge time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	ts, sig, err := parseHeader(header)
	if err != nil {
		return err
	}

	if maxAge > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > maxAge {
			return fmt.Errorf("%w: %v old", ErrSignatureExpired, age)
		}
		if age < -futureSkew {
			return fmt.Errorf("%w: timestamp is in the future", ErrSignatureExpired)
		}
	}

	expected := compute(secret, ts, payload)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

func compute(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// parseHeader splits a "t=<unix>,v1=<hex>" value into its parts.
func parseHeader(header string) (ts int64, sig string, err error) {
	if header == "" {
		return 0, "", fmt.Errorf("%w: signature header is missing", ErrInvalidSignature)
	}
	for part := range strings.SplitSeq(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
			}
		case "v1":
			sig = value
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
	}
	return ts, sig, nil
}
