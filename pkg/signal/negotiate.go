package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Bhuman-Patel/Talking-Avatar/internal/httpc"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/broker"
)

// Negotiator exchanges a local SDP offer for a remote SDP answer.
type Negotiator interface {
	Negotiate(ctx context.Context, offerSDP string) (string, error)
}

// RelayNegotiator sends the offer to the broker and lets it attach the
// credential server-side. The client never sees the API key.
type RelayNegotiator struct {
	// URL is the broker's session endpoint, e.g. http://localhost:3000/session.
	URL string
	// HTTP is the client used for the round trip. Nil means httpc.Client.
	HTTP *http.Client
}

// Negotiate posts the raw offer and returns the raw answer. A non-2xx broker
// response becomes a *broker.CredentialError carrying the upstream status and
// body verbatim.
func (n *RelayNegotiator) Negotiate(ctx context.Context, offerSDP string) (string, error) {
	client := n.HTTP
	if client == nil {
		client = httpc.Client
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("negotiate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("negotiate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("negotiate response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &broker.CredentialError{Status: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}

// TokenNegotiator fetches an ephemeral credential from the broker, then posts
// the offer directly upstream using it as a bearer token.
type TokenNegotiator struct {
	// BrokerURL is the broker's session endpoint queried for the credential.
	BrokerURL string
	// RealtimeURL is the upstream call endpoint the offer is posted to.
	// Empty means DefaultRealtimeURL.
	RealtimeURL string
	// HTTP is the client used for both round trips. Nil means httpc.Client.
	HTTP *http.Client
}

// DefaultRealtimeURL is where the offer goes when RealtimeURL is unset.
const DefaultRealtimeURL = "https://api.openai.com/v1/realtime"

// Negotiate performs the two-step token exchange.
func (n *TokenNegotiator) Negotiate(ctx context.Context, offerSDP string) (string, error) {
	cred, err := n.fetchCredential(ctx)
	if err != nil {
		return "", err
	}

	target := n.RealtimeURL
	if target == "" {
		target = DefaultRealtimeURL
	}
	if cred.Model != "" {
		target += "?model=" + url.QueryEscape(cred.Model)
	}

	client := n.HTTP
	if client == nil {
		client = httpc.Client
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("negotiate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+cred.Value)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("negotiate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("negotiate response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &broker.CredentialError{Status: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}

func (n *TokenNegotiator) fetchCredential(ctx context.Context) (broker.Credential, error) {
	client := n.HTTP
	if client == nil {
		client = httpc.Client
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BrokerURL, nil)
	if err != nil {
		return broker.Credential{}, fmt.Errorf("credential request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return broker.Credential{}, fmt.Errorf("credential fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return broker.Credential{}, fmt.Errorf("credential response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return broker.Credential{}, &broker.CredentialError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Result struct {
			ClientSecret struct {
				Value string `json:"value"`
			} `json:"client_secret"`
			Model string `json:"model"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return broker.Credential{}, fmt.Errorf("credential decode: %w", err)
	}
	if payload.Result.ClientSecret.Value == "" {
		return broker.Credential{}, &broker.CredentialError{Status: resp.StatusCode, Body: "credential missing from broker response"}
	}
	return broker.Credential{Value: payload.Result.ClientSecret.Value, Model: payload.Result.Model}, nil
}
