package signature

import (
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/storefront/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const payload = `{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1700000000,"data":{"object":{"id":"cs_1","object":"checkout.session"}}}`

func sign(t *testing.T, body, secret string, at time.Time) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

func TestVerifyAcceptsAnyConfiguredSecret(t *testing.T) {
	header := sign(t, payload, "whsec_b", time.Now())

	event, err := Verify([]byte(payload), header, []string{"whsec_a", "whsec_b"}, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, domain.KindCheckoutCompleted, event.Kind)
	assert.JSONEq(t, `{"id":"cs_1","object":"checkout.session"}`, string(event.Object))
	assert.Equal(t, []byte(payload), event.Raw)
	assert.Equal(t, int64(1700000000), event.Created.Unix())

	_, err = Verify([]byte(payload), header, []string{"whsec_a"}, 5*time.Minute)
	assert.True(t, errors.Is(err, domain.ErrAuthentication))
}

func TestVerifyRejections(t *testing.T) {
	valid := sign(t, payload, "whsec_a", time.Now())

	tests := []struct {
		name    string
		body    string
		header  string
		secrets []string
		wantErr error
	}{
		{name: "empty header", body: payload, header: "", secrets: []string{"whsec_a"}, wantErr: domain.ErrAuthentication},
		{name: "no secrets", body: payload, header: valid, secrets: nil, wantErr: domain.ErrAuthentication},
		{name: "blank secrets only", body: payload, header: valid, secrets: []string{" ", ""}, wantErr: domain.ErrAuthentication},
		{name: "garbage header", body: payload, header: "nonsense", secrets: []string{"whsec_a"}, wantErr: domain.ErrAuthentication},
		{name: "tampered body", body: payload + " ", header: valid, secrets: []string{"whsec_a"}, wantErr: domain.ErrAuthentication},
		{name: "expired", body: payload, header: sign(t, payload, "whsec_a", time.Now().Add(-time.Hour)), secrets: []string{"whsec_a"}, wantErr: domain.ErrAuthentication},
		{name: "signed non-event", body: `[1,2]`, header: sign(t, `[1,2]`, "whsec_a", time.Now()), secrets: []string{"whsec_a"}, wantErr: domain.ErrInvalidPayload},
		{name: "signed event without id", body: `{"type":"invoice.paid","data":{"object":{}}}`, header: sign(t, `{"type":"invoice.paid","data":{"object":{}}}`, "whsec_a", time.Now()), secrets: []string{"whsec_a"}, wantErr: domain.ErrInvalidPayload},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Verify([]byte(tc.body), tc.header, tc.secrets, 5*time.Minute)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}
}

func TestVerifySkipsBlankSecretBeforeValidOne(t *testing.T) {
	header := sign(t, payload, "whsec_live", time.Now())
	event, err := Verify([]byte(payload), header, []string{"", "whsec_live"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
}

func TestDecodeUnknownKind(t *testing.T) {
	event, err := Decode([]byte(`{"id":"evt_9","type":"customer.created","data":{"object":{"id":"cus_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.KindUnknown, event.Kind)
	assert.Equal(t, "customer.created", event.Type)

	_, err = Decode([]byte(`not json`))
	assert.True(t, errors.Is(err, domain.ErrInvalidPayload))
}
