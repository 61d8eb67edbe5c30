package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Bhuman-Patel/Talking-Avatar/pkg/broker"
)

// stubNegotiator is a canned broker for handler tests.
type stubNegotiator struct {
	answer string
	cred   *broker.Credential
	models []string
	err    error
}

func (s *stubNegotiator) Negotiate(ctx context.Context, offer string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *stubNegotiator) Mint(ctx context.Context) (*broker.Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cred, nil
}

func (s *stubNegotiator) ListModels(ctx context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.models, nil
}

func TestNegotiateEndpoint(t *testing.T) {
	srv := NewServer("0", &stubNegotiator{answer: "v=0\r\nanswer"})

	req := httptest.NewRequest("POST", "/session", strings.NewReader("v=0\r\noffer"))
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/sdp" {
		t.Errorf("content type = %q, want application/sdp", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "v=0\r\nanswer" {
		t.Errorf("body = %q", body)
	}
}

func TestNegotiateEndpointMissingOffer(t *testing.T) {
	srv := NewServer("0", &stubNegotiator{})

	req := httptest.NewRequest("POST", "/session", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNegotiateEndpointUpstreamErrorPassthrough(t *testing.T) {
	srv := NewServer("0", &stubNegotiator{
		err: &broker.CredentialError{Status: 403, Body: `{"error":"denied"}`},
	})

	req := httptest.NewRequest("POST", "/session", strings.NewReader("v=0\r\noffer"))
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 403 {
		t.Errorf("status = %d, want upstream 403", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "denied") {
		t.Errorf("body = %q, want upstream body verbatim", body)
	}
}

func TestMintEndpoint(t *testing.T) {
	srv := NewServer("0", &stubNegotiator{
		cred: &broker.Credential{Value: "ek_123", Model: "gpt-realtime"},
	})

	req := httptest.NewRequest("GET", "/session", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed struct {
		Result struct {
			ClientSecret struct {
				Value string `json:"value"`
			} `json:"client_secret"`
			Model string `json:"model"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Result.ClientSecret.Value != "ek_123" {
		t.Errorf("client secret = %q, want ek_123", parsed.Result.ClientSecret.Value)
	}
	if parsed.Result.Model != "gpt-realtime" {
		t.Errorf("model = %q, want gpt-realtime", parsed.Result.Model)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer("0", &stubNegotiator{})

	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed struct {
		Status      string `json:"status"`
		FeedClients int    `json:"feed_clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Status != "ok" {
		t.Errorf("status = %q, want ok", parsed.Status)
	}
	if parsed.FeedClients != 0 {
		t.Errorf("feed_clients = %d, want 0", parsed.FeedClients)
	}
}

func TestModelsEndpoint(t *testing.T) {
	srv := NewServer("0", &stubNegotiator{models: []string{"a", "b", "c"}})

	req := httptest.NewRequest("GET", "/models", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Count  int      `json:"count"`
		Models []string `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Count != 3 || len(parsed.Models) != 3 {
		t.Errorf("got count=%d models=%v, want 3", parsed.Count, parsed.Models)
	}
}
