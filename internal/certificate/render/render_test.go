package render_test

import (
	"testing"

	"github.com/entrada-events/entrada/internal/certificate/render"
)

func TestSubstitute(t *testing.T) {
	fields := map[string]string{
		"participant_name": "Asha Rao",
		"event_name":       "GopherCon India 2026",
	}

	got := render.Substitute("Dear {{ participant_name }}, thank you for attending {{ event_name }}.", fields)
	want := "Dear Asha Rao, thank you for attending GopherCon India 2026."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSubstituteSpacingAndCase(t *testing.T) {
	fields := map[string]string{"participant_name": "Asha"}

	cases := []string{
		"{{participant_name}}",
		"{{ participant_name }}",
		"{{  participant_name  }}",
		"{{ Participant_Name }}",
	}
	for _, tpl := range cases {
		if got := render.Substitute(tpl, fields); got != "Asha" {
			t.Fatalf("template %q: got %q, want %q", tpl, got, "Asha")
		}
	}
}

func TestSubstituteUnknownTokenLeftLiteral(t *testing.T) {
	fields := map[string]string{"participant_name": "Asha"}

	got := render.Substitute("Hello {{ participant_nmae }}", fields)
	if got != "Hello {{ participant_nmae }}" {
		t.Fatalf("expected typo token to survive, got %q", got)
	}
}
