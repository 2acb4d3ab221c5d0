package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"postflow/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func hubSignature(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"page","entry":[{"id":"1"}]}`)
	sig := hubSignature("app-secret", body)

	require.NoError(t, VerifySignature("app-secret", body, sig))

	cases := map[string]struct {
		secret string
		body   []byte
		header string
	}{
		"tampered body":      {"app-secret", []byte(`{"object":"page","entry":[{"id":"2"}]}`), sig},
		"re-encoded body":    {"app-secret", []byte(`{"object": "page", "entry": [{"id": "1"}]}`), sig},
		"wrong secret":       {"other-secret", body, sig},
		"missing header":     {"app-secret", body, ""},
		"missing prefix":     {"app-secret", body, sig[len("sha256="):]},
		"sha1 prefix":        {"app-secret", body, "sha1=" + sig[len("sha256="):]},
		"not hex":            {"app-secret", body, "sha256=zz"},
		"no secret":          {"", body, sig},
		"truncated digest":   {"app-secret", body, sig[:len(sig)-2]},
		"uppercase mismatch": {"app-secret", body, "SHA256=" + sig[len("sha256="):]},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := VerifySignature(tc.secret, tc.body, tc.header)
			require.True(t, errutil.HasStatus(err, errutil.StatusSignatureInvalid))
		})
	}
}

func TestVerifyTwitterSignature(t *testing.T) {
	body := []byte(`{"for_user_id":"42","tweet_create_events":[]}`)
	h := hmac.New(sha256.New, []byte("consumer-secret"))
	h.Write(body)
	sig := "sha256=" + base64.StdEncoding.EncodeToString(h.Sum(nil))

	require.NoError(t, VerifyTwitterSignature("consumer-secret", body, sig))
	require.Error(t, VerifyTwitterSignature("consumer-secret", append(body, ' '), sig))
	require.Error(t, VerifyTwitterSignature("consumer-secret", body, hubSignature("consumer-secret", body)))
}

func TestVerifyChallenge(t *testing.T) {
	got, err := VerifyChallenge("subscribe", "verify-me", "1158201444", "verify-me")
	require.NoError(t, err)
	require.Equal(t, "1158201444", got)

	for _, tc := range []struct{ mode, token, expected string }{
		{"subscribe", "verify-me ", "verify-me"},
		{"subscribe", "VERIFY-ME", "verify-me"},
		{"subscribe", "", "verify-me"},
		{"subscribe", "", ""},
		{"unsubscribe", "verify-me", "verify-me"},
		{"", "verify-me", "verify-me"},
	} {
		_, err := VerifyChallenge(tc.mode, tc.token, "x", tc.expected)
		require.True(t, errutil.HasStatus(err, errutil.StatusSignatureInvalid), "%+v", tc)
	}
}

func TestCRCResponse(t *testing.T) {
	h := hmac.New(sha256.New, []byte("consumer-secret"))
	h.Write([]byte("crc-token-123"))
	want := "sha256=" + base64.StdEncoding.EncodeToString(h.Sum(nil))

	require.Equal(t, want, CRCResponse("consumer-secret", "crc-token-123"))
	require.Equal(t, CRCResponse("consumer-secret", "crc-token-123"), CRCResponse("consumer-secret", "crc-token-123"))
	require.NotEqual(t, want, CRCResponse("consumer-secret", "crc-token-124"))
}
