package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"sendtime_notifier/internal/domain/engagement"
	"sendtime_notifier/internal/domain/notification"
)

func TestRecordSignal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	entry := &notification.QueueEntry{ID: 7, UserID: "u1", Channel: notification.ChannelEmail}
	if _, err := env.engagement.RecordSend(ctx, entry, testNow, nil, ""); err != nil {
		t.Fatalf("RecordSend: %v", err)
	}

	ev, changed, err := env.engagement.RecordSignal(ctx, 7, engagement.SignalClick, testNow.Add(10*time.Minute), SourceAPI)
	if err != nil || !changed {
		t.Fatalf("RecordSignal = %v, %v", changed, err)
	}
	if !ev.Opened || !ev.Clicked || ev.TimeToClickMin.Float64 != 10 {
		t.Fatalf("event = %+v", ev)
	}

	_, changed, err = env.engagement.RecordSignal(ctx, 7, engagement.SignalClick, testNow.Add(time.Hour), SourceKafka)
	if err != nil || changed {
		t.Fatalf("duplicate click = %v, %v; want unchanged", changed, err)
	}
	stored, err := env.events.GetByNotificationID(ctx, 7)
	if err != nil {
		t.Fatalf("GetByNotificationID: %v", err)
	}
	if stored.TimeToClickMin.Float64 != 10 || stored.SendHour != 12 {
		t.Fatalf("stored event = %+v", stored)
	}

	if _, _, err := env.engagement.RecordSignal(ctx, 8, engagement.SignalOpen, testNow, SourceAPI); !errors.Is(err, engagement.ErrEventNotFound) {
		t.Fatalf("unknown notification err = %v", err)
	}
}

func TestCohortAssignIsStable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.cohortSvc.Assign(ctx, "u1", testNow)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	second, err := env.cohortSvc.Assign(ctx, "u1", testNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if first.CohortName != second.CohortName || !second.AssignedAt.Equal(first.AssignedAt) {
		t.Fatalf("assignment changed: %+v then %+v", first, second)
	}
	if !env.cohortSvc.Eligible(notification.ChannelEmail) || env.cohortSvc.Eligible(notification.ChannelSMS) {
		t.Fatalf("unexpected eligibility")
	}
}
