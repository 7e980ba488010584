package logger

import (
	"testing"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

type recordSink struct{ events []axiom.Event }

func (s *recordSink) Send(ev axiom.Event) { s.events = append(s.events, ev) }

func TestAxiomWriterLevels(t *testing.T) {
	sink := &recordSink{}
	w := newAxiomWriter(sink, "flipbook")
	lg := zerolog.New(w)

	lg.Debug().Msg("noise")
	lg.Info().Str("session", "s1").Msg("session created")
	lg.Error().Str("service", "other").Msg("boom")

	if len(sink.events) != 2 {
		t.Fatalf("forwarded %d events, want 2", len(sink.events))
	}
	first := sink.events[0]
	if first["service"] != "flipbook" || first["session"] != "s1" || first["message"] != "session created" {
		t.Errorf("first event = %v", first)
	}
	if _, ok := first[ingest.TimestampField]; !ok {
		t.Errorf("first event has no %s", ingest.TimestampField)
	}
	if sink.events[1]["service"] != "other" {
		t.Errorf("explicit service overwritten: %v", sink.events[1])
	}
}

func TestAxiomWriterRawLine(t *testing.T) {
	sink := &recordSink{}
	if _, err := newAxiomWriter(sink, "flipbook").Write([]byte("not json")); err != nil {
		t.Fatal(err)
	}
	if len(sink.events) != 1 || sink.events[0]["message"] != "not json" || sink.events[0]["level"] != "info" {
		t.Errorf("events = %v", sink.events)
	}
}
