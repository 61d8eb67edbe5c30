package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name       string
		pinned     string
		candidates []string
		available  []string
		want       string
		wantErr    error
	}{
		{
			name:       "candidate priority wins",
			candidates: []string{"gpt-realtime", "gpt-4o-mini-realtime"},
			available:  []string{"gpt-4o-mini-realtime", "gpt-realtime"},
			want:       "gpt-realtime",
		},
		{
			name:       "pinned exact match",
			pinned:     "gpt-4o-mini-realtime",
			candidates: DefaultModelCandidates,
			available:  []string{"gpt-realtime", "gpt-4o-mini-realtime"},
			want:       "gpt-4o-mini-realtime",
		},
		{
			name:       "pinned prefix match",
			pinned:     "gpt-realtime",
			candidates: DefaultModelCandidates,
			available:  []string{"gpt-realtime-2025-06-03"},
			want:       "gpt-realtime-2025-06-03",
		},
		{
			name:       "pinned unavailable falls back to candidates",
			pinned:     "gpt-nonexistent",
			candidates: []string{"gpt-realtime"},
			available:  []string{"gpt-realtime", "whisper-1"},
			want:       "gpt-realtime",
		},
		{
			name:       "candidate prefix match",
			candidates: []string{"gpt-4o-realtime-preview"},
			available:  []string{"gpt-4o-realtime-preview-2024-12-17"},
			want:       "gpt-4o-realtime-preview-2024-12-17",
		},
		{
			name:       "substring last resort",
			candidates: []string{"gpt-realtime"},
			available:  []string{"whisper-1", "custom-realtime-model"},
			want:       "custom-realtime-model",
		},
		{
			name:       "nothing capable",
			candidates: DefaultModelCandidates,
			available:  []string{"whisper-1", "gpt-4o"},
			wantErr:    ErrNoCapableModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectModel(tt.pinned, tt.candidates, tt.available)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("selected %q, want %q", got, tt.want)
			}
		})
	}
}

// upstream builds a test server mimicking the provider API.
func upstream(t *testing.T, models []string, callStatus int, callBody string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			data := make([]map[string]string, len(models))
			for i, m := range models {
				data[i] = map[string]string{"id": m}
			}
			json.NewEncoder(w).Encode(map[string]any{"data": data})
		case "/realtime/calls":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("call setup not multipart: %v", err)
			}
			if r.FormValue("sdp") == "" {
				t.Error("call setup missing sdp field")
			}
			var session map[string]any
			if err := json.Unmarshal([]byte(r.FormValue("session")), &session); err != nil {
				t.Errorf("session field not JSON: %v", err)
			} else if session["type"] != "realtime" {
				t.Errorf("session type = %v, want realtime", session["type"])
			}
			w.WriteHeader(callStatus)
			w.Write([]byte(callBody))
		case "/realtime/sessions":
			w.WriteHeader(callStatus)
			w.Write([]byte(callBody))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestNegotiateReturnsAnswer(t *testing.T) {
	srv := upstream(t, []string{"gpt-realtime"}, http.StatusOK, "v=0\r\nanswer")
	defer srv.Close()

	b := New("sk-test", WithBaseURL(srv.URL))
	answer, err := b.Negotiate(context.Background(), "v=0\r\noffer")
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if answer != "v=0\r\nanswer" {
		t.Errorf("answer = %q", answer)
	}
}

func TestNegotiateUpstreamError(t *testing.T) {
	srv := upstream(t, []string{"gpt-realtime"}, http.StatusForbidden, `{"error":"denied"}`)
	defer srv.Close()

	b := New("sk-test", WithBaseURL(srv.URL))
	_, err := b.Negotiate(context.Background(), "v=0\r\noffer")

	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("error = %v, want *CredentialError", err)
	}
	if credErr.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", credErr.Status)
	}
	if !strings.Contains(credErr.Body, "denied") {
		t.Errorf("body = %q, want upstream body verbatim", credErr.Body)
	}
}

func TestNegotiateRejectsEmptyOffer(t *testing.T) {
	b := New("sk-test")
	if _, err := b.Negotiate(context.Background(), "  "); err == nil {
		t.Error("expected error for empty offer")
	}
}

func TestNegotiateNoCapableModel(t *testing.T) {
	srv := upstream(t, []string{"whisper-1"}, http.StatusOK, "")
	defer srv.Close()

	b := New("sk-test", WithBaseURL(srv.URL))
	_, err := b.Negotiate(context.Background(), "v=0\r\noffer")
	if !errors.Is(err, ErrNoCapableModel) {
		t.Errorf("error = %v, want ErrNoCapableModel", err)
	}
}

func TestMint(t *testing.T) {
	srv := upstream(t, []string{"gpt-realtime"}, http.StatusOK,
		`{"client_secret":{"value":"ek_secret_123"}}`)
	defer srv.Close()

	b := New("sk-test", WithBaseURL(srv.URL))
	cred, err := b.Mint(context.Background())
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if cred.Value != "ek_secret_123" {
		t.Errorf("credential value = %q", cred.Value)
	}
	if cred.Model != "gpt-realtime" {
		t.Errorf("credential model = %q", cred.Model)
	}
}

func TestMintMissingSecret(t *testing.T) {
	srv := upstream(t, []string{"gpt-realtime"}, http.StatusOK, `{}`)
	defer srv.Close()

	b := New("sk-test", WithBaseURL(srv.URL))
	if _, err := b.Mint(context.Background()); err == nil {
		t.Error("expected error for mint response without secret")
	}
}

func TestCredentialStringRedacts(t *testing.T) {
	c := Credential{Value: "ek_verysecretvalue", Model: "gpt-realtime"}
	s := c.String()
	if strings.Contains(s, "verysecretvalue") {
		t.Errorf("String() leaked the credential: %s", s)
	}
	if !strings.Contains(s, "gpt-realtime") {
		t.Errorf("String() should include the model: %s", s)
	}
}

func TestListModels(t *testing.T) {
	srv := upstream(t, []string{"a", "b"}, http.StatusOK, "")
	defer srv.Close()

	b := New("sk-test", WithBaseURL(srv.URL))
	models, err := b.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0] != "a" || models[1] != "b" {
		t.Errorf("models = %v, want [a b]", models)
	}
}
