package gateway

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

// SignatureTolerance bounds webhook timestamp skew. Deliveries older than
// this are rejected to blunt replay of captured payloads.
const SignatureTolerance = 5 * time.Minute

var (
	ErrSignatureFormat   = errors.New("malformed signature header")
	ErrSignatureExpired  = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// VerifySignature validates a webhook delivery. The header carries
// "t=<unix>,v1=<hex>" where the hex digest is HMAC-SHA256 of
// "<unix>.<body>" under the shared webhook secret.
func VerifySignature(secret, header string, body []byte, now time.Time) error {
	var ts int64
	var provided string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrSignatureFormat
			}
			ts = parsed
		case "v1":
			provided = value
		}
	}
	if ts == 0 || provided == "" {
		return ErrSignatureFormat
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return ErrSignatureExpired
	}

	expected := ComputeSignature(secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrSignatureMismatch
	}
	return nil
}

// ComputeSignature produces the hex digest the provider signs deliveries
// with. Exported so tests and local tooling can forge valid deliveries.
func ComputeSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
