package githubapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// AuthMode names the identity requests are sent as.
type AuthMode string

const (
	// AuthModeAnonymous sends unauthenticated requests. Organization
	// membership and admin listings are unavailable in this mode.
	AuthModeAnonymous AuthMode = "anonymous"
	// AuthModeToken sends a static bearer token.
	AuthModeToken AuthMode = "token"
	// AuthModeApp authenticates as a GitHub App installation.
	AuthModeApp AuthMode = "app"
)

// Credentials selects how the aggregation authenticates. An App
// installation takes precedence over a token.
type Credentials struct {
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
}

// Mode reports which identity c resolves to.
func (c Credentials) Mode() AuthMode {
	switch {
	case c.AppID > 0:
		return AuthModeApp
	case strings.TrimSpace(c.Token) != "":
		return AuthModeToken
	default:
		return AuthModeAnonymous
	}
}

// NewAuthenticatedHTTPClient returns an http.Client that sends requests over
// base as the identity in creds. A nil base uses http.DefaultTransport.
func NewAuthenticatedHTTPClient(creds Credentials, timeout time.Duration, base http.RoundTripper) (*http.Client, error) {
	if base == nil {
		base = http.DefaultTransport
	}

	var transport http.RoundTripper
	switch creds.Mode() {
	case AuthModeApp:
		installation, err := installationTransport(creds, base)
		if err != nil {
			return nil, err
		}
		transport = installation
	case AuthModeToken:
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(creds.Token)}),
			Base:   base,
		}
	default:
		transport = base
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func installationTransport(creds Credentials, base http.RoundTripper) (http.RoundTripper, error) {
	var errs []error
	if creds.InstallationID <= 0 {
		errs = append(errs, fmt.Errorf("installation id must be > 0"))
	}
	if strings.TrimSpace(creds.PrivateKeyPath) == "" {
		errs = append(errs, fmt.Errorf("private key path is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("github app credentials: %w", err)
	}

	transport, err := ghinstallation.NewKeyFromFile(base, creds.AppID, creds.InstallationID, creds.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}
	return transport, nil
}

// newRESTClient builds a go-github client, pointing it at apiBaseURL when
// set (GitHub Enterprise).
func newRESTClient(httpClient *http.Client, apiBaseURL string) (*github.Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	client := github.NewClient(httpClient)

	trimmed := strings.TrimSpace(apiBaseURL)
	if trimmed == "" {
		return client, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	client.BaseURL = parsed
	return client, nil
}
