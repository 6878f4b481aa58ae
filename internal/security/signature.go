// Package security verifies signed provider callbacks.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// HeaderName carries "t=<unix-seconds>,v1=<hex-hmac>".
const HeaderName = "X-Signature"

// SignatureError explains why a signature was rejected.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string { return "invalid webhook signature: " + e.Reason }

// Verifier checks HMAC-SHA256 signatures computed over "<timestamp>.<body>".
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// WithClock overrides the time source.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) Verify(header string, body []byte) error {
	if len(v.secret) == 0 {
		return &SignatureError{Reason: "secret not configured"}
	}
	ts, sigs, err := parseHeader(header)
	if err != nil {
		return err
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return &SignatureError{Reason: "timestamp outside tolerance"}
	}

	expected := compute(v.secret, ts, body)
	for _, s := range sigs {
		if hmac.Equal([]byte(s), []byte(expected)) {
			return nil
		}
	}
	return &SignatureError{Reason: "signature mismatch"}
}

func parseHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, &SignatureError{Reason: "missing header"}
	}
	var (
		ts    int64
		hasTS bool
		sigs  []string
	)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, &SignatureError{Reason: "malformed timestamp"}
			}
			ts, hasTS = n, true
		case "v1":
			sigs = append(sigs, strings.ToLower(val))
		}
	}
	if !hasTS {
		return 0, nil, &SignatureError{Reason: "missing timestamp"}
	}
	if len(sigs) == 0 {
		return 0, nil, &SignatureError{Reason: "missing v1 signature"}
	}
	return ts, sigs, nil
}

func compute(secret []byte, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign builds a header value for body. Used by tests and local tooling.
func Sign(secret string, ts time.Time, body []byte) string {
	unix := ts.Unix()
	return "t=" + strconv.FormatInt(unix, 10) + ",v1=" + compute([]byte(secret), unix, body)
}
