package engagement

import (
	"testing"
	"time"

	"sendtime_notifier/internal/domain/notification"
)

func sentEvent(t *testing.T) *Event {
	t.Helper()
	entry := &notification.QueueEntry{ID: 7, UserID: "u-1", Channel: notification.ChannelEmail}
	loc := time.FixedZone("UTC-5", -5*60*60)
	sentAt := time.Date(2026, time.May, 4, 14, 0, 0, 0, time.UTC)
	return NewSendEvent(entry, sentAt, loc, DemographicSnapshot{AgeBracket: "25-34"}, "morning")
}

func TestNewSendEventUsesLocalHour(t *testing.T) {
	t.Parallel()
	ev := sentEvent(t)
	if ev.SendHour != 9 {
		t.Fatalf("SendHour = %d, want 9", ev.SendHour)
	}
	if ev.SendDayOfWeek != time.Monday {
		t.Fatalf("SendDayOfWeek = %v, want Monday", ev.SendDayOfWeek)
	}
	if ev.PolicyVersion != CurrentPolicy || ev.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("unexpected versions %s/%d", ev.PolicyVersion, ev.SchemaVersion)
	}
	if !ev.CohortName.Valid || ev.CohortName.String != "morning" {
		t.Fatalf("unexpected cohort %+v", ev.CohortName)
	}
}

func TestApplyFirstTouchWins(t *testing.T) {
	t.Parallel()
	ev := sentEvent(t)
	openAt := ev.SentAt.Add(30 * time.Minute)
	if !ev.Apply(SignalOpen, openAt) {
		t.Fatal("first open should change the event")
	}
	if ev.Apply(SignalOpen, openAt.Add(time.Hour)) {
		t.Fatal("second open should be ignored")
	}
	if ev.TimeToOpenMin.Float64 != 30 {
		t.Fatalf("TimeToOpenMin = %v, want 30", ev.TimeToOpenMin.Float64)
	}
}

func TestApplyClickImpliesOpen(t *testing.T) {
	t.Parallel()
	ev := sentEvent(t)
	ev.Apply(SignalClick, ev.SentAt.Add(90*time.Minute))
	if !ev.Opened || !ev.Clicked {
		t.Fatalf("expected opened and clicked, got %+v", ev)
	}
	if ev.TimeToClickMin.Float64 != 90 || ev.TimeToOpenMin.Float64 != 90 {
		t.Fatalf("unexpected deltas open=%v click=%v", ev.TimeToOpenMin.Float64, ev.TimeToClickMin.Float64)
	}
	if err := ev.Valid(); err != nil {
		t.Fatalf("Valid: %v", err)
	}
}

func TestApplyClampsSignalsBeforeSend(t *testing.T) {
	t.Parallel()
	ev := sentEvent(t)
	ev.Apply(SignalConvert, ev.SentAt.Add(-time.Hour))
	if ev.TimeToConvertMin.Float64 != 0 {
		t.Fatalf("TimeToConvertMin = %v, want 0", ev.TimeToConvertMin.Float64)
	}
}

func TestScoreUsesTaggedPolicy(t *testing.T) {
	t.Parallel()
	ev := sentEvent(t)
	ev.Apply(SignalClick, ev.SentAt.Add(time.Minute))

	ev.PolicyVersion = PolicyV1
	if got := Score(ev, ev.SentAt.Add(365*24*time.Hour)); got != 4 {
		t.Fatalf("v1 score = %v, want 4 (no decay)", got)
	}

	ev.PolicyVersion = PolicyV2
	if got := Score(ev, ev.SentAt); got != 5 {
		t.Fatalf("v2 score at send time = %v, want 5", got)
	}
	halved := Score(ev, ev.SentAt.Add(30*24*time.Hour))
	if halved < 2.49 || halved > 2.51 {
		t.Fatalf("v2 score after one half-life = %v, want 2.5", halved)
	}

	ev.PolicyVersion = "unknown"
	if got := Score(ev, ev.SentAt); got != 4 {
		t.Fatalf("untagged rows should score with v1, got %v", got)
	}
}

func TestParseSignalKind(t *testing.T) {
	t.Parallel()
	for raw, want := range map[string]SignalKind{"opened": SignalOpen, "click": SignalClick, "conversion": SignalConvert} {
		got, ok := ParseSignalKind(raw)
		if !ok || got != want {
			t.Fatalf("ParseSignalKind(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := ParseSignalKind("bounce"); ok {
		t.Fatal("bounce is not an engagement signal")
	}
}
