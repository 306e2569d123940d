package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"vendora/internal/models"
)

// EventKind is the closed set of gateway callback kinds this system reacts
// to. Anything else parses to KindUnknown and is logged and ignored rather
// than silently misrouted.
type EventKind string

const (
	KindAuthorizationSucceeded EventKind = "authorization.succeeded"
	KindAuthorizationFailed    EventKind = "authorization.failed"
	KindChargeRefunded         EventKind = "charge.refunded"
	KindUnknown                EventKind = "unknown"
)

// ParseKind maps a wire event type onto the closed kind set.
func ParseKind(raw string) EventKind {
	switch raw {
	case string(KindAuthorizationSucceeded):
		return KindAuthorizationSucceeded
	case string(KindAuthorizationFailed):
		return KindAuthorizationFailed
	case string(KindChargeRefunded):
		return KindChargeRefunded
	default:
		return KindUnknown
	}
}

// Event is a verified, parsed gateway callback.
type Event struct {
	ID               string
	Kind             EventKind
	RawKind          string
	AuthorizationRef string
	Metadata         models.PaymentMetadata
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		AuthorizationRef string                 `json:"authorization_ref"`
		Metadata         models.PaymentMetadata `json:"metadata"`
	} `json:"data"`
}

// SignPayload computes the hex HMAC-SHA256 signature the gateway attaches to
// webhook deliveries. Exposed for tests and local tooling.
func SignPayload(raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAndParseEvent authenticates the raw body against the shared secret
// and only then parses it. On any error the caller must respond with a
// client error and perform no state mutation.
func VerifyAndParseEvent(raw []byte, signature, secret string) (*Event, error) {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return nil, ErrInvalidSignature
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if envelope.ID == "" || envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedPayload)
	}

	return &Event{
		ID:               envelope.ID,
		Kind:             ParseKind(envelope.Type),
		RawKind:          envelope.Type,
		AuthorizationRef: envelope.Data.AuthorizationRef,
		Metadata:         envelope.Data.Metadata,
	}, nil
}
