package githubapi

import (
	"fmt"
	"net/http"
)

// Transport adapts Client to http.RoundTripper so typed SDK clients inherit
// the retry and rate-limit handling.
type Transport struct {
	client *Client
}

// NewTransport wraps client as a RoundTripper.
func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t == nil || t.client == nil {
		return nil, fmt.Errorf("github transport is not initialized")
	}
	resp, _, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("github transport: nil response")
	}
	if resp.Request == nil {
		resp.Request = req
	}
	return resp, nil
}

// LastCall returns metadata from the most recent round trip.
func (t *Transport) LastCall() CallMetadata {
	if t == nil || t.client == nil {
		return CallMetadata{}
	}
	return t.client.LastCall()
}
