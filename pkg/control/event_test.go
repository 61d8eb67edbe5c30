package control

import (
	"encoding/json"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "error frame",
			raw:  `{"type":"error","error":{"message":"bad session"}}`,
			want: Event{Type: EventError, Detail: "bad session"},
		},
		{
			name: "error field without error type",
			raw:  `{"type":"response.done","error":{"message":"cut short"}}`,
			want: Event{Type: EventError, Detail: "cut short"},
		},
		{
			name: "buffer committed",
			raw:  `{"type":"input_audio_buffer.committed","item_id":"abc"}`,
			want: Event{Type: EventBufferCommitted},
		},
		{
			name: "response created",
			raw:  `{"type":"response.created","response":{"output":[]}}`,
			want: Event{Type: EventResponseLifecycle, Phase: PhaseCreated},
		},
		{
			name: "response done with output",
			raw:  `{"type":"response.done","response":{"output":[{},{}]}}`,
			want: Event{Type: EventResponseLifecycle, Phase: PhaseDone, OutputCount: 2},
		},
		{
			name: "final transcription",
			raw:  `{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello there"}`,
			want: Event{Type: EventTranscriptDelta, Text: "hello there", IsFinal: true},
		},
		{
			name: "incremental delta",
			raw:  `{"type":"response.audio_transcript.delta","delta":"Hel"}`,
			want: Event{Type: EventTranscriptDelta, Text: "Hel", IsFinal: false},
		},
		{
			name: "unknown type",
			raw:  `{"type":"rate_limits.updated","rate_limits":[]}`,
			want: Event{Type: EventUnknown},
		},
		{
			name: "empty object",
			raw:  `{}`,
			want: Event{Type: EventUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify([]byte(tt.raw))
			if !ok {
				t.Fatalf("Classify(%s) dropped a valid frame", tt.raw)
			}
			if got.Type != tt.want.Type {
				t.Fatalf("Type = %v, want %v", got.Type, tt.want.Type)
			}
			if got.Detail != tt.want.Detail {
				t.Errorf("Detail = %q, want %q", got.Detail, tt.want.Detail)
			}
			if got.Text != tt.want.Text || got.IsFinal != tt.want.IsFinal {
				t.Errorf("Text = %q final=%v, want %q final=%v",
					got.Text, got.IsFinal, tt.want.Text, tt.want.IsFinal)
			}
			if got.Phase != tt.want.Phase || got.OutputCount != tt.want.OutputCount {
				t.Errorf("Phase = %q count=%d, want %q count=%d",
					got.Phase, got.OutputCount, tt.want.Phase, tt.want.OutputCount)
			}
			if got.Type == EventUnknown && len(got.Raw) == 0 {
				t.Error("unknown event lost the raw frame")
			}
		})
	}
}

func TestClassifyDropsMalformed(t *testing.T) {
	// The channel carries opaque non-JSON frames by design; none of these
	// may surface an error or an event.
	frames := []string{
		"",
		"not json at all",
		"{truncated",
		"\x00\x01\x02",
	}

	for _, raw := range frames {
		if ev, ok := Classify([]byte(raw)); ok {
			t.Errorf("Classify(%q) = %+v, want dropped", raw, ev)
		}
	}
}

func TestClassifyIsTotal(t *testing.T) {
	// Every syntactically valid JSON object maps to exactly one variant.
	frames := []string{
		`{"type":123}`,
		`{"delta":42}`,
		`{"transcript":"x","type":"something.else"}`,
		`{"response":"not-an-object","type":"response.done"}`,
		`{"nested":{"deeply":[1,2,{"a":null}]}}`,
	}

	for _, raw := range frames {
		ev, ok := Classify([]byte(raw))
		if !ok {
			t.Errorf("Classify(%s) dropped a valid JSON object", raw)
			continue
		}
		switch ev.Type {
		case EventError, EventTranscriptDelta, EventResponseLifecycle,
			EventBufferCommitted, EventUnknown:
		default:
			t.Errorf("Classify(%s) produced unexpected type %q", raw, ev.Type)
		}
	}
}

func TestClassifyUnknownPreservesRaw(t *testing.T) {
	raw := `{"type":"output_audio_buffer.started","detail":"x"}`
	ev, ok := Classify([]byte(raw))
	if !ok || ev.Type != EventUnknown {
		t.Fatalf("Classify = %+v ok=%v, want unknown event", ev, ok)
	}

	var rt map[string]any
	if err := json.Unmarshal(ev.Raw, &rt); err != nil {
		t.Fatalf("raw payload not valid JSON: %v", err)
	}
	if rt["type"] != "output_audio_buffer.started" {
		t.Errorf("raw type = %v, want original", rt["type"])
	}
}
