package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyPaddleWebhookSignature checks the Paddle-Signature header against the
// raw, unparsed request body. The header carries `ts=<unix>;h1=<hex>` and the
// signature is HMAC-SHA256 over "<ts>:<body>". The body must not be parsed
// before this check succeeds, since verification needs the exact bytes.
func VerifyPaddleWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	ts, hashes := parseSignatureHeader(sig)
	if ts == "" || len(hashes) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(payload)
	expected := mac.Sum(nil)

	// Paddle may send several h1 values during secret rotation; any match
	// counts.
	for _, h := range hashes {
		decoded, err := hex.DecodeString(strings.ToLower(h))
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return true
		}
	}
	return false
}

func parseSignatureHeader(header string) (ts string, hashes []string) {
	for _, part := range strings.Split(header, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "h1":
			hashes = append(hashes, value)
		}
	}
	return ts, hashes
}
