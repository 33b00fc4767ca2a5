// Package signature authenticates inbound gateway webhooks.
package signature

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/webhook/domain"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Verify checks header against each secret in order and returns the decoded
// event for the first one that matches. Blank secrets are skipped so a
// half-configured rotation slot does not open the endpoint.
func Verify(payload []byte, header string, secrets []string, tolerance time.Duration) (domain.InboundEvent, error) {
	if strings.TrimSpace(header) == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: missing signature header", domain.ErrAuthentication)
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	opts := webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	}

	var lastErr error
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		event, err := webhook.ConstructEventWithOptions(payload, header, secret, opts)
		if err == nil {
			return toInbound(event, payload)
		}
		if !isSignatureErr(err) {
			// The signature matched but the body is not an event.
			return domain.InboundEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		lastErr = err
	}
	if lastErr == nil {
		return domain.InboundEvent{}, fmt.Errorf("%w: no webhook secret configured", domain.ErrAuthentication)
	}
	return domain.InboundEvent{}, fmt.Errorf("%w: %v", domain.ErrAuthentication, lastErr)
}

// Decode rebuilds an event from a payload that was verified when it was
// first received.
func Decode(payload []byte) (domain.InboundEvent, error) {
	var event stripeapi.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return toInbound(event, payload)
}

func toInbound(event stripeapi.Event, payload []byte) (domain.InboundEvent, error) {
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(string(event.Type)) == "" {
		return domain.InboundEvent{}, fmt.Errorf("%w: event id and type are required", domain.ErrInvalidPayload)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return domain.InboundEvent{}, fmt.Errorf("%w: event %s has no data object", domain.ErrInvalidPayload, event.ID)
	}

	raw := make([]byte, len(payload))
	copy(raw, payload)

	return domain.InboundEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Kind:    domain.ParseEventKind(string(event.Type)),
		Created: time.Unix(event.Created, 0).UTC(),
		Object:  event.Data.Raw,
		Raw:     raw,
	}, nil
}

func isSignatureErr(err error) bool {
	return errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}
