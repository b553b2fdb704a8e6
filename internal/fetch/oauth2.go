package fetch

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Config holds client credentials for carrier APIs guarded by OAuth2
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewOAuth2Provider returns an HTTP provider whose requests carry a bearer
// token obtained with the client credentials flow. The oauth2 transport caches
// the token and refreshes it on expiry.
func NewOAuth2Provider(ctx context.Context, cfg OAuth2Config, opts ...HTTPOption) *HTTPProvider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, NewHTTPClient(0))
	opts = append([]HTTPOption{WithClient(cc.Client(ctx)), WithBrowserHeaders(false)}, opts...)
	return NewHTTPProvider(opts...)
}
