package webhook_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkordes/tripcrew/backend/internal/webhook"
)

// Example from the provider's security documentation.
const (
	docToken = "12345"
	docURL   = "https://mycompany.com/myapp.php?foo=1&bar=2"
	docSig   = "0/KCTR6DLpKmkAf8muzZqo1nDgQ="
)

func docParams() url.Values {
	return url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}
}

func TestTwilioPayload_SortedKeys(t *testing.T) {
	got := webhook.TwilioPayload("https://x.test/cb", url.Values{
		"b": {"2"},
		"a": {"1", "3"},
	})
	assert.Equal(t, "https://x.test/cba1a3b2", got)
}

func TestVerifyTwilio(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		params url.Values
		sig    string
		token  string
		want   bool
	}{
		{name: "documented example", url: docURL, params: docParams(), sig: docSig, token: docToken, want: true},
		{name: "wrong token", url: docURL, params: docParams(), sig: docSig, token: "54321", want: false},
		{name: "tampered param", url: docURL, params: func() url.Values {
			p := docParams()
			p.Set("Digits", "9999")
			return p
		}(), sig: docSig, token: docToken, want: false},
		{name: "different url", url: "https://mycompany.com/other", params: docParams(), sig: docSig, token: docToken, want: false},
		{name: "truncated signature", url: docURL, params: docParams(), sig: docSig[:10], token: docToken, want: false},
		{name: "empty signature", url: docURL, params: docParams(), sig: "", token: docToken, want: false},
		{name: "empty token", url: docURL, params: docParams(), sig: docSig, token: "", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, webhook.VerifyTwilio(tc.url, tc.params, tc.sig, tc.token))
		})
	}
}

func TestVerifyTwilio_RoundTrip(t *testing.T) {
	params := url.Values{"Body": {"switch to rome"}, "MessageSid": {"SM1"}}
	sig := webhook.SignTwilio("https://api.test/webhooks/twilio/sms", params, "secret")
	assert.True(t, webhook.VerifyTwilio("https://api.test/webhooks/twilio/sms", params, sig, "secret"))
}

func TestVerifyBody(t *testing.T) {
	body := []byte(`{"From":"a@example.com"}`)
	sig := webhook.SignBody(body, "s3cret")

	assert.True(t, webhook.VerifyBody(body, sig, "s3cret"))
	assert.True(t, webhook.VerifyBody(body, "  "+sig, "s3cret"), "surrounding space ignored")
	assert.False(t, webhook.VerifyBody([]byte(`{"From":"b@example.com"}`), sig, "s3cret"))
	assert.False(t, webhook.VerifyBody(body, sig, "other"))
	assert.False(t, webhook.VerifyBody(body, "", "s3cret"))
}
