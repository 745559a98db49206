package chronicle

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// EnvAccessToken names a static bearer token that bypasses ADC.
const EnvAccessToken = "CHRONICLE_ACCESS_TOKEN"

// Scope is the OAuth2 scope requested from Application Default Credentials.
const Scope = "https://www.googleapis.com/auth/cloud-platform"

// resolveTokenSource picks credentials in order: injected source, static
// token, Application Default Credentials.
func resolveTokenSource(ctx context.Context, injected oauth2.TokenSource, accessToken string) (oauth2.TokenSource, string, error) {
	if injected != nil {
		return injected, "injected", nil
	}
	if accessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}), "static", nil
	}
	creds, err := google.FindDefaultCredentials(ctx, Scope)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errNoCredentials, err)
	}
	source := "adc"
	if creds.ProjectID != "" {
		source = "adc:" + creds.ProjectID
	}
	return oauth2.ReuseTokenSource(nil, creds.TokenSource), source, nil
}
