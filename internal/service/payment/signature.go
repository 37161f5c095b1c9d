package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature rejects a webhook whose signature does not verify.
// Nothing is parsed or mutated once this is returned.
var ErrBadSignature = errors.New("webhook signature verification failed")

// SignatureHeader is the HTTP header carrying the provider signature.
const SignatureHeader = "Payment-Signature"

// Sign computes the signature header value for a payload at the given
// instant: HMAC-SHA256 over "<unix>.<payload>" with the shared secret.
func Sign(secret string, at time.Time, payload []byte) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hexDigest(secret, ts, payload))
}

// VerifySignature checks a header of the form "t=<unix>,v1=<hex>" against
// the payload. The timestamp must fall within the allowed skew and the
// digest comparison is constant-time.
func VerifySignature(secret, header string, payload []byte, now time.Time, skew time.Duration) error {
	if secret == "" || header == "" {
		return ErrBadSignature
	}

	var ts int64
	var digest string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = parsed
		case "v1":
			digest = value
		}
	}
	if ts == 0 || digest == "" {
		return ErrBadSignature
	}

	if skew > 0 {
		at := time.Unix(ts, 0)
		if at.Before(now.Add(-skew)) || at.After(now.Add(skew)) {
			return ErrBadSignature
		}
	}

	expected := hexDigest(secret, ts, payload)
	if !hmac.Equal([]byte(expected), []byte(digest)) {
		return ErrBadSignature
	}
	return nil
}

func hexDigest(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
