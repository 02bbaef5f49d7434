package stream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"sendtime_notifier/internal/domain/engagement"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		wantID   int64
		wantKind engagement.SignalKind
		wantErr  bool
	}{
		{"full payload", "", `{"notificationId":12,"kind":"click"}`, 12, engagement.SignalClick, false},
		{"id from key", "34", `{"kind":"opened"}`, 34, engagement.SignalOpen, false},
		{"conversion alias", "", `{"notificationId":5,"kind":"conversion"}`, 5, engagement.SignalConvert, false},
		{"bad json", "", `{`, 0, "", true},
		{"bad key", "abc", `{"kind":"open"}`, 0, "", true},
		{"missing id", "", `{"kind":"open"}`, 0, "", true},
		{"unknown kind", "", `{"notificationId":1,"kind":"liked"}`, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, kind, err := parseMessage(kafka.Message{Key: []byte(tt.key), Value: []byte(tt.value)})
			if tt.wantErr {
				if !errors.Is(err, errMalformed) {
					t.Fatalf("expected malformed error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sig.NotificationID != tt.wantID || kind != tt.wantKind {
				t.Fatalf("got (%d, %s), want (%d, %s)", sig.NotificationID, kind, tt.wantID, tt.wantKind)
			}
		})
	}
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type recordedSignal struct {
	id     int64
	kind   engagement.SignalKind
	at     time.Time
	source string
}

type fakeRecorder struct {
	got []recordedSignal
}

func (f *fakeRecorder) RecordSignal(_ context.Context, id int64, kind engagement.SignalKind, at time.Time, source string) (*engagement.Event, bool, error) {
	f.got = append(f.got, recordedSignal{id, kind, at, source})
	if id == 404 {
		return nil, false, engagement.ErrEventNotFound
	}
	return &engagement.Event{NotificationID: id}, true, nil
}

func TestConsumerRecordsAndCommitsEveryMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgTime := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 1, Value: []byte(`{"notificationId":1,"kind":"open","occurredAt":"2026-03-10T08:30:00Z"}`)},
		{Offset: 2, Value: []byte(`not json`)},
		{Offset: 3, Value: []byte(`{"notificationId":404,"kind":"click"}`), Time: msgTime},
		{Offset: 4, Key: []byte("2"), Value: []byte(`{"kind":"click"}`), Time: msgTime},
	}}
	recorder := &fakeRecorder{}
	log := logrus.New()
	log.SetOutput(io.Discard)

	c := &EngagementConsumer{reader: reader, recorder: recorder, logger: logrus.NewEntry(log)}
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(reader.committed) != 4 {
		t.Fatalf("committed offsets = %v, want all four", reader.committed)
	}
	if !reader.closed {
		t.Fatalf("reader not closed")
	}
	if len(recorder.got) != 3 {
		t.Fatalf("recorded %d signals, want 3", len(recorder.got))
	}
	first := recorder.got[0]
	if first.source != "kafka" || !first.at.Equal(time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first signal: %+v", first)
	}
	last := recorder.got[2]
	if last.id != 2 || last.kind != engagement.SignalClick || !last.at.Equal(msgTime) {
		t.Fatalf("unexpected keyed signal: %+v", last)
	}
}
