package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/paygate/internal/payment/domain"
)

// DefaultTolerance is the replay-defense window: events whose signed
// timestamp is older than this are rejected as stale.
const DefaultTolerance = 300 * time.Second

// Verify checks a webhook payload against its Stripe-style signature header.
// The header is a comma-separated list of key=value pairs carrying a unix
// timestamp (t) and one or more hex HMAC-SHA256 signatures (v1) computed over
// "{t}.{payload}". Pure function of its inputs; the caller supplies now.
func Verify(payload []byte, sigHeader string, secret string, now time.Time) error {
	timestamp, signatures, err := parseHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrMalformedHeader
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrMalformedHeader
	}
	if now.Unix()-ts > int64(DefaultTolerance.Seconds()) {
		return paymentdomain.ErrStaleTimestamp
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrBadSignature
}

func parseHeader(header string) (string, []string, error) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, paymentdomain.ErrMalformedHeader
	}
	return timestamp, signatures, nil
}
