package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/storefront/internal/config"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// Gateway implements paymentdomain.Gateway on the Stripe REST API.
type Gateway struct {
	api *client.API
}

func NewGateway(cfg config.Config, log *zap.Logger) (paymentdomain.Gateway, error) {
	key := strings.TrimSpace(cfg.Stripe.SecretKey)
	if key == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("%w: STRIPE_SECRET_KEY is required", paymentdomain.ErrInvalidConfig)
		}
		log.Warn("STRIPE_SECRET_KEY is empty, gateway calls will fail")
	}
	return NewGatewayWithBackends(key, nil), nil
}

// NewGatewayWithBackends lets tests point the client at a local server.
func NewGatewayWithBackends(key string, backends *stripeapi.Backends) *Gateway {
	return &Gateway{api: client.New(key, backends)}
}

func (g *Gateway) RetrieveSubscription(ctx context.Context, id string) (*paymentdomain.SubscriptionDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("subscription id is empty")
	}
	params := &stripeapi.SubscriptionParams{}
	params.Context = ctx
	sub, err := g.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", id, err)
	}
	return toSubscription(sub), nil
}

func (g *Gateway) RetrieveProduct(ctx context.Context, id string) (*paymentdomain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("product id is empty")
	}
	params := &stripeapi.ProductParams{}
	params.Context = ctx
	product, err := g.api.Products.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve product %s: %w", id, err)
	}
	return &paymentdomain.Product{
		ID:       product.ID,
		Name:     product.Name,
		Metadata: product.Metadata,
	}, nil
}

func (g *Gateway) RetrievePaymentIntent(ctx context.Context, id string) (*paymentdomain.PaymentIntent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("payment intent id is empty")
	}
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent %s: %w", id, err)
	}
	return toPaymentIntent(pi), nil
}

func (g *Gateway) ListLineItems(ctx context.Context, sessionID string) ([]paymentdomain.LineItem, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session id is empty")
	}
	params := &stripeapi.CheckoutSessionListLineItemsParams{
		Session: stripeapi.String(sessionID),
	}
	params.Context = ctx
	params.Limit = stripeapi.Int64(100)

	var items []paymentdomain.LineItem
	iter := g.api.CheckoutSessions.ListLineItems(params)
	for iter.Next() {
		items = append(items, toLineItem(iter.LineItem()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list line items %s: %w", sessionID, err)
	}
	return items, nil
}

func (g *Gateway) RetrieveCustomer(ctx context.Context, id string) (*paymentdomain.Customer, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("customer id is empty")
	}
	params := &stripeapi.CustomerParams{}
	params.Context = ctx
	cus, err := g.api.Customers.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve customer %s: %w", id, err)
	}
	return &paymentdomain.Customer{
		ID:       cus.ID,
		Email:    cus.Email,
		Name:     cus.Name,
		Metadata: cus.Metadata,
	}, nil
}
