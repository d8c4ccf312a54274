package payments

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketcheckout/pkg/config"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/square"
	pkgstripe "github.com/angelmondragon/marketcheckout/pkg/stripe"
)

// Clients holds the provider selected by configuration. Only the client of
// the active gateway is set.
type Clients struct {
	Provider Provider
	Square   *square.Client
	Stripe   *pkgstripe.Client
}

// ProviderFromConfig builds the provider named by the checkout gateway setting.
func ProviderFromConfig(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Clients, error) {
	switch cfg.Checkout.GatewayName() {
	case config.GatewaySquare:
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		provider, err := NewSquareProvider(client)
		if err != nil {
			return nil, err
		}
		return &Clients{Provider: provider, Square: client}, nil
	case config.GatewayStripe:
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		provider, err := NewStripeProvider(client)
		if err != nil {
			return nil, err
		}
		return &Clients{Provider: provider, Stripe: client}, nil
	case config.GatewayFake:
		return &Clients{Provider: NewFakeProvider()}, nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Checkout.Gateway)
	}
}
