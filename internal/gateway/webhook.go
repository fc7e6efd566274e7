package gateway

import (
	"encoding/json"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/ports"
)

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// WebhookDecoder decodes processor notifications. It implements ports.WebhookDecoder.
type WebhookDecoder struct{}

func (WebhookDecoder) Decode(body []byte) (ports.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ports.WebhookEvent{}, domain.Validationf("malformed webhook body: %v", err)
	}
	if env.Event == "" {
		return ports.WebhookEvent{}, domain.Validationf("webhook event is missing")
	}

	entity := env.Payload.Payment.Entity
	return ports.WebhookEvent{
		Event:            env.Event,
		GatewayOrderID:   entity.OrderID,
		GatewayPaymentID: entity.ID,
		ErrorDescription: entity.ErrorDescription,
	}, nil
}
