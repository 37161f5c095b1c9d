package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/mustafamuhammed29/handyland-sub001/internal/config"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
)

// Session is a provider-hosted checkout session: an opaque id the provider
// will echo back in webhook events, and the URL the client is redirected to.
type Session struct {
	ID          string
	RedirectURL string
}

// Provider creates checkout sessions with the external payment provider.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, order *entity.Order) (Session, error)
}

// hostedProvider builds sessions for a hosted checkout page. The session id
// is minted locally and carried in the redirect; the provider echoes it in
// the completed-checkout event.
type hostedProvider struct {
	cfg config.Payment
}

// NewHostedProvider constructs the default Provider from configuration.
func NewHostedProvider(cfg config.Config) Provider {
	return &hostedProvider{cfg: cfg.Payment}
}

func (p *hostedProvider) CreateCheckoutSession(_ context.Context, order *entity.Order) (Session, error) {
	id := "cs_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	redirect, err := url.Parse(p.cfg.CheckoutBaseURL)
	if err != nil {
		return Session{}, fmt.Errorf("parse checkout base url: %w", err)
	}
	q := redirect.Query()
	q.Set("session", id)
	q.Set("order", order.Number)
	q.Set("success_url", p.cfg.SuccessURL)
	q.Set("cancel_url", p.cfg.CancelURL)
	redirect.RawQuery = q.Encode()

	return Session{ID: id, RedirectURL: redirect.String()}, nil
}
