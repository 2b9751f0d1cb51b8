package extract

import (
	"errors"
	"testing"

	"github.com/chatviz/chatviz/internal/charts"
	"github.com/chatviz/chatviz/internal/log"
)

func newTestExtractor(t *testing.T) *LLMExtractor {
	t.Helper()
	// The genkit handle is only needed for live generation; payload parsing
	// and validation are exercised without it.
	e, err := NewLLMExtractor(nil, "test-model", log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestParsePayload(t *testing.T) {
	e := newTestExtractor(t)

	t.Run("valid time series", func(t *testing.T) {
		p, err := e.parsePayload(`{"type": "time_series", "confidence": 0.9, "title": "Sales", "data": {"month": ["Jan", "Feb"], "sales": [100, 150]}}`)
		if err != nil {
			t.Fatal(err)
		}
		if p.Type != charts.TypeTimeSeries || p.Confidence != 0.9 {
			t.Errorf("pattern = %+v", p)
		}
		if p.Metadata.Title != "Sales" {
			t.Errorf("title = %q", p.Metadata.Title)
		}
		if len(p.Data) != 2 || p.Data[0].Name != "month" {
			t.Errorf("fields = %+v", p.Data)
		}
	})

	t.Run("confidence clamped", func(t *testing.T) {
		p, err := e.parsePayload(`{"type": "comparison", "confidence": 1.7, "data": {"a": 1, "b": 2}}`)
		if err != nil {
			t.Fatal(err)
		}
		if p.Confidence != 1 {
			t.Errorf("confidence = %v, want clamped to 1", p.Confidence)
		}
	})

	t.Run("invalid type rejected by schema", func(t *testing.T) {
		_, err := e.parsePayload(`{"type": "pie", "data": {"a": 1}}`)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("err = %v, want ErrInvalidPayload", err)
		}
	})

	t.Run("none type is an error for the orchestrator to degrade on", func(t *testing.T) {
		_, err := e.parsePayload(`{"type": "none"}`)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("err = %v, want ErrInvalidPayload", err)
		}
	})

	t.Run("missing data rejected", func(t *testing.T) {
		_, err := e.parsePayload(`{"type": "comparison", "confidence": 0.8}`)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("err = %v, want ErrInvalidPayload", err)
		}
	})
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{\"a\": 1}", "{\"a\": 1}"},
		{"```json\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"```\n{\"a\": 1}\n```", "{\"a\": 1}"},
	}
	for _, tc := range cases {
		if got := stripCodeFences(tc.in); got != tc.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
