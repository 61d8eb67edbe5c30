// Package broker exchanges a client's SDP offer for an answer from the
// upstream realtime provider, so the browser never holds the long-lived API
// key. It also mints short-lived credentials for deployments where the
// client negotiates directly (token strategy).
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Bhuman-Patel/Talking-Avatar/internal/httpc"
	"github.com/Bhuman-Patel/Talking-Avatar/internal/log"
)

// DefaultBaseURL is the upstream API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultModelCandidates is the ordered fallback list tried when no pinned
// model is available, GA realtime models first.
var DefaultModelCandidates = []string{
	"gpt-realtime",
	"gpt-realtime-mini",
	"gpt-4o-realtime",
	"gpt-4o-mini-realtime",
	"gpt-4o-realtime-preview",
	"gpt-4o-mini-realtime-preview",
	"gpt-4o-realtime-preview-2024-12-17",
}

// ErrNoCapableModel means no realtime-capable model is visible to the
// configured credential. Operator intervention required.
var ErrNoCapableModel = errors.New("broker: no realtime-capable model available to this API key")

// CredentialError reports a failed upstream negotiation, carrying the
// upstream status and body verbatim for diagnostics. Never retried
// automatically.
type CredentialError struct {
	Status int
	Body   string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("broker: upstream returned %d: %s", e.Status, e.Body)
}

// Credential is a short-lived secret plus the model it was minted for.
// It lives only long enough to complete one SDP exchange.
type Credential struct {
	Value string
	Model string
}

// String redacts the secret; credentials are never logged in full.
func (c Credential) String() string {
	v := c.Value
	if len(v) > 8 {
		v = v[:8] + "..."
	}
	return fmt.Sprintf("Credential{value: %s, model: %s}", v, c.Model)
}

// Broker negotiates sessions against the upstream provider.
// Exactly one outbound call per Negotiate, Mint, or ListModels invocation;
// retries are the caller's responsibility.
type Broker struct {
	apiKey       string
	pinnedModel  string
	baseURL      string
	voice        string
	instructions string
	http         *http.Client
}

// Option configures a Broker.
type Option func(*Broker)

// WithBaseURL overrides the upstream API root (tests, proxies).
func WithBaseURL(url string) Option {
	return func(b *Broker) { b.baseURL = strings.TrimRight(url, "/") }
}

// WithPinnedModel pins a model id. It is still validated against the
// provider's live model list before use.
func WithPinnedModel(model string) Option {
	return func(b *Broker) { b.pinnedModel = model }
}

// WithVoice sets the output voice attached to negotiated sessions.
func WithVoice(voice string) Option {
	return func(b *Broker) { b.voice = voice }
}

// WithInstructions sets the session instructions attached to negotiated
// sessions.
func WithInstructions(instructions string) Option {
	return func(b *Broker) { b.instructions = instructions }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Broker) { b.http = c }
}

// New creates a broker for the given API key.
func New(apiKey string, opts ...Option) *Broker {
	b := &Broker{
		apiKey:       apiKey,
		baseURL:      DefaultBaseURL,
		voice:        "ash",
		instructions: "You are a helpful voice assistant. Always speak your replies.",
		http:         httpc.Client,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ListModels returns the model ids visible to the configured credential.
func (b *Broker) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker: list models: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("broker: read models: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &CredentialError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("broker: decode models: %w", err)
	}

	ids := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// PickRealtimeModel selects a realtime-capable model: the pinned model if the
// provider still advertises it (exact or prefix match), otherwise the first
// available candidate, otherwise any advertised id containing "realtime".
func (b *Broker) PickRealtimeModel(ctx context.Context) (string, error) {
	available, err := b.ListModels(ctx)
	if err != nil {
		return "", err
	}
	return selectModel(b.pinnedModel, DefaultModelCandidates, available)
}

// selectModel implements the fallback chain over a known model list.
func selectModel(pinned string, candidates, available []string) (string, error) {
	if pinned != "" {
		for _, id := range available {
			if id == pinned {
				return id, nil
			}
		}
		// Provider may advertise dated variants of the pinned id.
		for _, id := range available {
			if strings.HasPrefix(id, pinned) {
				return id, nil
			}
		}
	}

	for _, want := range candidates {
		for _, id := range available {
			if id == want || strings.HasPrefix(id, want) {
				return id, nil
			}
		}
	}

	for _, id := range available {
		if strings.Contains(strings.ToLower(id), "realtime") {
			return id, nil
		}
	}

	return "", ErrNoCapableModel
}

// sessionConfig is the session description attached to a negotiated call.
func (b *Broker) sessionConfig(model string) map[string]any {
	return map[string]any{
		"type":         "realtime",
		"model":        model,
		"instructions": b.instructions,
		"audio": map[string]any{
			"output": map[string]any{"voice": b.voice},
		},
	}
}

// Negotiate implements the relay strategy: pick a model, attach the session
// configuration, forward the offer to the upstream call-setup endpoint, and
// return the provider's SDP answer. The API key never reaches the client.
func (b *Broker) Negotiate(ctx context.Context, offerSDP string) (string, error) {
	if strings.TrimSpace(offerSDP) == "" {
		return "", errors.New("broker: missing SDP offer")
	}

	model, err := b.PickRealtimeModel(ctx)
	if err != nil {
		return "", err
	}

	log.Info("negotiating realtime call", "model", model)

	sessionJSON, err := json.Marshal(b.sessionConfig(model))
	if err != nil {
		return "", fmt.Errorf("broker: marshal session config: %w", err)
	}

	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	if err := w.WriteField("sdp", offerSDP); err != nil {
		return "", fmt.Errorf("broker: build form: %w", err)
	}
	if err := w.WriteField("session", string(sessionJSON)); err != nil {
		return "", fmt.Errorf("broker: build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("broker: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/realtime/calls", &form)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := b.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("broker: call setup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("broker: read answer: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("upstream rejected call", "status", resp.StatusCode)
		return "", &CredentialError{Status: resp.StatusCode, Body: string(body)}
	}

	return string(body), nil
}

// Mint implements the token strategy: pre-mint a short-lived credential the
// client uses as a bearer for its own SDP exchange.
func (b *Broker) Mint(ctx context.Context) (*Credential, error) {
	model, err := b.PickRealtimeModel(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"model": model,
		"voice": b.voice,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/realtime/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker: mint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("broker: read mint response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &CredentialError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("broker: decode mint response: %w", err)
	}
	if parsed.ClientSecret.Value == "" {
		return nil, errors.New("broker: mint response missing client secret")
	}

	cred := &Credential{Value: parsed.ClientSecret.Value, Model: model}
	log.Info("minted ephemeral credential", "credential", cred.String())
	return cred, nil
}
