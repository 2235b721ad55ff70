package hotword

import (
	"reflect"
	"testing"

	"streamhwd/recognizer"
)

func newTestModels(t *testing.T) *Models {
	t.Helper()
	m, err := New(map[string][]string{
		"light": {"turn on", "Turn On The Light"},
		"alice": {"alice"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestProcess(t *testing.T) {
	m := newTestModels(t)
	prev := &recognizer.Candidate{Model: "alice", Phrase: "alice", Text: "alice"}

	for _, tt := range []struct {
		name   string
		text   string
		prev   *recognizer.Candidate
		want   recognizer.Candidate
		wantOK bool
	}{
		{"longest phrase wins", "turn on the light", nil, recognizer.Candidate{Model: "light", Phrase: "turn on the light", Text: "turn on the light"}, true},
		{"shorter phrase", "please turn on", nil, recognizer.Candidate{Model: "light", Phrase: "turn on", Text: "please turn on"}, true},
		{"case and punctuation", "Alice, what time is it?", nil, recognizer.Candidate{Model: "alice", Phrase: "alice", Text: "alice what time is it"}, true},
		{"word boundary", "malice aforethought", nil, recognizer.Candidate{}, false},
		{"no match", "turn", nil, recognizer.Candidate{}, false},
		{"no match with partial context", "what time is it", prev, recognizer.Candidate{Model: "alice", Phrase: "alice", Text: "what time is it"}, true},
		{"empty", "  ", prev, recognizer.Candidate{}, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Process(tt.text, tt.prev)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for empty vocabulary")
	}
	if _, err := New(map[string][]string{"x": {" ", "!!"}}); err == nil {
		t.Error("expected error for model without phrases")
	}
}

func TestIDsSorted(t *testing.T) {
	m := newTestModels(t)
	if got, want := m.IDs(), []string{"alice", "light"}; !reflect.DeepEqual(got, want) {
		t.Errorf("IDs = %v, want %v", got, want)
	}
}

func TestImplementsTextProcessor(t *testing.T) {
	var _ recognizer.TextProcessor = newTestModels(t)
}
