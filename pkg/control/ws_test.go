package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDialWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}

	var mu sync.Mutex
	var gotAuth string
	received := make(chan map[string]any, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		// Read the greeting session.update, then answer with a transcript.
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if err := json.Unmarshal(msg, &frame); err != nil {
			t.Errorf("first frame not JSON: %v", err)
			return
		}
		received <- frame

		reply := `{"type":"response.audio_transcript.delta","delta":"hi"}`
		if err := ws.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}

		// Keep the socket open until the client hangs up.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := NewChannel(DefaultSessionConfig(), Options{})
	events := make(chan Event, 4)
	ch.OnEvent(func(ev Event) { events <- ev })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := DialWebSocket(context.Background(), url, "ek_test_ws", ch)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer conn.Close()

	mu.Lock()
	auth := gotAuth
	mu.Unlock()
	if auth != "Bearer ek_test_ws" {
		t.Errorf("authorization header = %q", auth)
	}

	select {
	case frame := <-received:
		if frame["type"] != "session.update" {
			t.Errorf("first frame type = %v, want session.update", frame["type"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the opening session.update")
	}

	select {
	case ev := <-events:
		if ev.Type != EventTranscriptDelta || ev.Text != "hi" {
			t.Errorf("event = %+v, want transcript delta %q", ev, "hi")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transcript event never delivered")
	}

	if ch.State() != StateOpen {
		t.Errorf("channel state = %v, want open", ch.State())
	}
}
