// Package webhook authenticates inbound provider callbacks.
// Verification runs on the raw request before anything is parsed or stored.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// TwilioSignatureHeader carries the telephony provider's request signature.
const TwilioSignatureHeader = "X-Twilio-Signature"

// EmailSignatureHeader carries the optional email provider signature.
const EmailSignatureHeader = "X-Webhook-Signature"

// TwilioPayload builds the string the telephony provider signs: the full
// callback URL followed by every form parameter as key+value, keys in
// lexicographic order. A key with several values contributes each of them in
// the order received.
func TwilioPayload(callbackURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(callbackURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	return b.String()
}

// SignTwilio returns the base64 HMAC-SHA1 signature for a callback.
func SignTwilio(callbackURL string, params url.Values, authToken string) string {
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(TwilioPayload(callbackURL, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyTwilio reports whether signature is valid for the callback.
// An empty token or signature never verifies.
func VerifyTwilio(callbackURL string, params url.Values, signature, authToken string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	return equal(SignTwilio(callbackURL, params, authToken), signature)
}

// SignBody returns the hex HMAC-SHA256 of body.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyBody checks a hex HMAC-SHA256 signature over the raw body.
// Hex case is ignored.
func VerifyBody(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return equal(SignBody(body, secret), strings.ToLower(strings.TrimSpace(signature)))
}

// equal rejects unequal lengths up front, then compares in constant time.
func equal(expected, got string) bool {
	if len(expected) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
