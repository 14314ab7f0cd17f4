package freekassa

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstore/store-service/pkg/logger"
)

func newTestClient() *Client {
	return NewClient(Config{
		MerchantID: "m-1",
		Secret1:    "link-secret",
		Secret2:    "callback-secret",
	}, logger.NewNop())
}

func md5Of(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

func TestPaymentLink(t *testing.T) {
	client := newTestClient()

	link := client.PaymentLink("abc123", decimal.NewFromFloat(719.25))
	parsed, err := url.Parse(link)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "m-1", q.Get("m"))
	assert.Equal(t, "719.25", q.Get("oa"))
	assert.Equal(t, "abc123", q.Get("o"))
	assert.Equal(t, "RUB", q.Get("currency"))
	assert.Equal(t, md5Of("m-1", "719.25", "link-secret", "RUB", "abc123"), q.Get("s"))
}

func TestVerifyCallback(t *testing.T) {
	client := newTestClient()

	cb := Callback{
		MerchantID: "m-1",
		Amount:     "719.25",
		OrderID:    "abc123",
		Sign:       md5Of("m-1", "719.25", "callback-secret", "abc123"),
	}
	assert.True(t, client.VerifyCallback(cb))

	// The gateway sends the digest in either case.
	cb.Sign = strings.ToUpper(cb.Sign)
	assert.True(t, client.VerifyCallback(cb))

	cb.Sign = md5Of("m-1", "719.25", "wrong-secret", "abc123")
	assert.False(t, client.VerifyCallback(cb))

	cb.Sign = md5Of("m-1", "719.25", "callback-secret", "abc123")
	cb.Amount = "1.00"
	assert.False(t, client.VerifyCallback(cb))
}
