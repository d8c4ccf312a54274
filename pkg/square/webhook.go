package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
)

// SignatureHeader carries base64(HMAC-SHA256(notification URL + body)).
const SignatureHeader = "x-square-hmacsha256-signature"

// VerifyWebhook checks a notification against the configured subscription.
func (c *Client) VerifyWebhook(body []byte, signature string) error {
	return VerifyWebhookSignature(c.webhookKey, c.webhookURL, body, signature)
}

// VerifyWebhookSignature is the key-explicit form of Client.VerifyWebhook.
func VerifyWebhookSignature(signatureKey, notificationURL string, body []byte, signature string) error {
	if signatureKey == "" || notificationURL == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "square webhook verification not configured")
	}
	provided, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature")
	}
	if !hmac.Equal(provided, SignWebhook(signatureKey, notificationURL, body)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature")
	}
	return nil
}

// SignWebhook computes the raw signature Square sends for body.
func SignWebhook(signatureKey, notificationURL string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return mac.Sum(nil)
}
