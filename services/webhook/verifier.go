// Package webhook authenticates inbound platform deliveries and hands them to
// the worker.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"postflow/pkg/errutil"
)

const (
	HeaderHubSignature     = "X-Hub-Signature-256"
	HeaderTwitterSignature = "X-Twitter-Webhooks-Signature"

	signaturePrefix = "sha256="
	subscribeMode   = "subscribe"
)

func signatureInvalid(msg string) error {
	return errutil.New(errutil.StatusSignatureInvalid, msg)
}

func mac(secret string, data []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return h.Sum(nil)
}

// VerifySignature checks a Meta style header, "sha256=" followed by the hex
// HMAC-SHA256 of the raw body. The body must be the exact bytes received.
func VerifySignature(secret string, body []byte, header string) error {
	return verify(secret, body, header, func(s string) ([]byte, error) {
		return hex.DecodeString(s)
	})
}

// VerifyTwitterSignature is VerifySignature with a base64 digest.
func VerifyTwitterSignature(secret string, body []byte, header string) error {
	return verify(secret, body, header, base64.StdEncoding.DecodeString)
}

func verify(secret string, body []byte, header string, decode func(string) ([]byte, error)) error {
	if secret == "" {
		return signatureInvalid("no webhook secret configured")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return signatureInvalid("missing or malformed signature header")
	}
	got, err := decode(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return signatureInvalid("malformed signature digest")
	}
	if !hmac.Equal(got, mac(secret, body)) {
		return signatureInvalid("signature mismatch")
	}
	return nil
}

// VerifyChallenge answers a hub subscription handshake. The challenge is
// echoed verbatim when the mode is subscribe and the verify token matches
// exactly.
func VerifyChallenge(mode, token, challenge, expected string) (string, error) {
	if mode != subscribeMode {
		return "", signatureInvalid("unexpected hub.mode")
	}
	if expected == "" || !hmac.Equal([]byte(token), []byte(expected)) {
		return "", signatureInvalid("verify token mismatch")
	}
	return challenge, nil
}

// CRCResponse computes the response_token of a Twitter CRC check.
func CRCResponse(secret, crcToken string) string {
	return signaturePrefix + base64.StdEncoding.EncodeToString(mac(secret, []byte(crcToken)))
}
