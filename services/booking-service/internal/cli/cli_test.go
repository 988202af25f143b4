package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/canceltoken"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{"Tuesday": time.Tuesday, "sat": time.Saturday, "0": time.Sunday} {
		got, err := parseWeekday(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := parseWeekday("funday"); err == nil {
		t.Fatalf("expected error for unknown weekday")
	}
}

func TestParseWindows(t *testing.T) {
	ws, err := parseWindows([]string{"09:00-13:00", "15:00-18:30"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ws) != 2 || ws[1].Start != model.NewClock(15, 0) || ws[1].End != model.NewClock(18, 30) {
		t.Fatalf("unexpected windows %+v", ws)
	}
	for _, bad := range []string{"09:00", "13:00-09:00", "9-10", "10:00-10:00"} {
		if _, err := parseWindows([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestTokenInspect(t *testing.T) {
	const secret = "cli-test-secret-0123456789abcdefghij"
	codec, err := canceltoken.NewCodec(secret, time.UTC)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	issued := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	draft, err := codec.Draft(canceltoken.Subject{PatientID: "p1", PatientPhone: "+1", Date: mustDate(t, "2025-06-10"), Time: model.NewClock(10, 0)}, issued)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	final, err := codec.Finalize(draft, "a1", issued)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var out bytes.Buffer
	ctx := &Context{Context: context.Background(), Out: &out, Globals: &Globals{Timezone: "UTC"}, Now: func() time.Time { return issued }}
	if err := (&TokenInspectCmd{Token: final.Token, Secret: secret}).Run(ctx); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var got tokenOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.AppointmentID != "a1" || got.AppointmentTime != "10:00" {
		t.Fatalf("unexpected output %+v", got)
	}

	err = (&TokenInspectCmd{Token: draft.Token, Secret: secret}).Run(ctx)
	if !errors.Is(err, model.ErrInvalidToken) {
		t.Fatalf("draft token must not inspect as valid, got %v", err)
	}
}

func TestCommandsRequireDatabaseURL(t *testing.T) {
	ctx := &Context{Context: context.Background(), Out: &bytes.Buffer{}, Globals: &Globals{Timezone: "UTC"}}
	if err := (&MigrateCmd{}).Run(ctx); err == nil {
		t.Fatalf("expected error without a database url")
	}
	if err := (&ScheduleSetCmd{Weekday: "tue"}).Run(ctx); err == nil {
		t.Fatalf("working day without windows must be rejected")
	}
}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("date: %v", err)
	}
	return d
}

func TestGlobalsReadRedisDBFromEnvironment(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")

	var cli struct{ Globals }
	parser, err := kong.New(&cli, kong.Name("clinicctl"))
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	if _, err := parser.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cli.RedisDB != 3 || cli.RedisAddr != "redis:6379" {
		t.Fatalf("expected redis settings from environment, got %+v", cli.Globals)
	}
}
