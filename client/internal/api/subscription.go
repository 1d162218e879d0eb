package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

// GetSubscriptionStatus fetches the entitlement payload for the bearer.
func GetSubscriptionStatus(ctx context.Context, hc types.HTTPClient, baseURL, token string) (*types.SubscriptionStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, hc, http.MethodGet, baseURL+"/api/subscription/status", token, "subscription status", nil)
	if err != nil {
		return nil, err
	}
	var st types.SubscriptionStatus
	if err := decode(body, &st, "subscription status"); err != nil {
		return nil, err
	}
	return &st, nil
}

// CreateCheckoutSession starts the billing handoff and returns the redirect URL.
func CreateCheckoutSession(ctx context.Context, hc types.HTTPClient, baseURL, token string, req types.CheckoutRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := types.ValidateIDPresent(req.SuccessURL, "success_url"); err != nil {
		return "", err
	}
	if err := types.ValidateIDPresent(req.CancelURL, "cancel_url"); err != nil {
		return "", err
	}
	return redirect(ctx, hc, baseURL+"/api/subscription/create-checkout-session", token, "create checkout session", req)
}

// CreatePortalSession starts the subscription management handoff.
func CreatePortalSession(ctx context.Context, hc types.HTTPClient, baseURL, token string, req types.PortalRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := types.ValidateIDPresent(req.ReturnURL, "return_url"); err != nil {
		return "", err
	}
	return redirect(ctx, hc, baseURL+"/api/subscription/create-portal-session", token, "create portal session", req)
}

func redirect(ctx context.Context, hc types.HTTPClient, url, token, op string, payload any) (string, error) {
	body, err := doJSON(ctx, hc, http.MethodPost, url, token, op, payload)
	if err != nil {
		return "", err
	}
	var rr types.RedirectResponse
	if err := decode(body, &rr, op); err != nil {
		return "", err
	}
	u, ok := rr.First()
	if !ok {
		return "", fmt.Errorf("%s: %w: no redirect url", op, types.ErrMalformedResponse)
	}
	return u, nil
}
