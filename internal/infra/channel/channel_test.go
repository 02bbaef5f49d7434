package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"sendtime_notifier/internal/domain/notification"
)

type stubSender struct {
	ch    notification.Channel
	calls int
}

func (s *stubSender) Channel() notification.Channel { return s.ch }

func (s *stubSender) Send(context.Context, *notification.QueueEntry, notification.Recipient) error {
	s.calls++
	return nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(1)
	email := &stubSender{ch: notification.ChannelEmail}
	reg.Register(email)

	if _, ok := reg.For(notification.ChannelSMS); ok {
		t.Fatal("unregistered channel resolved")
	}
	s, ok := reg.For(notification.ChannelEmail)
	if !ok {
		t.Fatal("email sender not found")
	}
	if got := reg.Channels(); len(got) != 1 || got[0] != notification.ChannelEmail {
		t.Fatalf("Channels() = %v", got)
	}

	if err := s.Send(context.Background(), &notification.QueueEntry{}, notification.Recipient{}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Send(ctx, &notification.QueueEntry{}, notification.Recipient{}); err == nil {
		t.Fatal("second send within the same second should wait past the deadline")
	}
	if email.calls != 1 {
		t.Fatalf("underlying sender calls = %d, want 1", email.calls)
	}
}

func TestSMSSender(t *testing.T) {
	var got smsRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got.To == "+100" {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("carrier down"))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSMSSender(srv.URL, "secret", srv.Client())
	entry := &notification.QueueEntry{ID: 42, Body: "Your code is 1234"}

	if err := sender.Send(context.Background(), entry, notification.Recipient{Phone: "+15550001"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.To != "+15550001" || got.Message != "Your code is 1234" || got.Reference != "42" || auth != "Bearer secret" {
		t.Fatalf("gateway saw %+v auth %q", got, auth)
	}

	err := sender.Send(context.Background(), entry, notification.Recipient{Phone: "+100"})
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "carrier down") {
		t.Fatalf("gateway failure err = %v", err)
	}
	if err := sender.Send(context.Background(), entry, notification.Recipient{}); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("missing phone err = %v, want ErrNoAddress", err)
	}
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("noreply@example.com", "ann@example.com",
		&notification.QueueEntry{ID: 9, Subject: "Weekly\r\nBcc: evil@example.com", Body: "<p>hi</p>"}))

	if !strings.Contains(msg, "Subject: Weekly  Bcc: evil@example.com\r\n") {
		t.Fatalf("subject header not sanitized:\n%s", msg)
	}
	if !strings.Contains(msg, "X-Notification-ID: 9\r\n") || !strings.HasSuffix(msg, "\r\n\r\n<p>hi</p>") {
		t.Fatalf("unexpected message:\n%s", msg)
	}
}

func TestBuildMessageEncodesNonASCIISubject(t *testing.T) {
	const subject = "Ваш отчёт за неделю ✓"
	msg := string(buildMessage("noreply@example.com", "ann@example.com",
		&notification.QueueEntry{ID: 3, Subject: subject, Body: "x"}))

	var header string
	for _, line := range strings.Split(msg, "\r\n") {
		if strings.HasPrefix(line, "Subject: ") {
			header = strings.TrimPrefix(line, "Subject: ")
			break
		}
	}
	if !strings.HasPrefix(header, "=?utf-8?q?") {
		t.Fatalf("subject not encoded: %q", header)
	}
	for i := 0; i < len(header); i++ {
		if header[i] > 0x7e {
			t.Fatalf("raw byte %#x left in subject header %q", header[i], header)
		}
	}
	decoded, err := new(mime.WordDecoder).DecodeHeader(header)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if decoded != subject {
		t.Fatalf("decoded subject = %q, want %q", decoded, subject)
	}
}

// fakeSMTP accepts one session and records the DATA payload.
func fakeSMTP(t *testing.T) (host string, port int, data func() string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var (
		mu      sync.Mutex
		payload strings.Builder
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		write("220 localhost ESMTP")
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if inData {
				if line == ".\r\n" {
					inData = false
					write("250 queued")
					continue
				}
				mu.Lock()
				payload.WriteString(line)
				mu.Unlock()
				continue
			}
			switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
			case strings.HasPrefix(cmd, "EHLO"):
				write("250 localhost")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				write("250 ok")
			case cmd == "DATA":
				inData = true
				write("354 go ahead")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("502 unsupported")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, func() string {
		<-done
		mu.Lock()
		defer mu.Unlock()
		return payload.String()
	}
}

func TestEmailSenderDeliversOverSMTP(t *testing.T) {
	host, port, data := fakeSMTP(t)
	sender := NewEmailSender(SMTPConfig{Host: host, Port: port, From: "noreply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entry := &notification.QueueEntry{ID: 5, Subject: "Hello", Body: "<p>body</p>"}
	if err := sender.Send(ctx, entry, notification.Recipient{Email: "ann@example.com"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := data()
	if !strings.Contains(got, "To: ann@example.com") || !strings.Contains(got, "X-Notification-ID: "+strconv.Itoa(5)) {
		t.Fatalf("server received:\n%s", got)
	}

	if err := sender.Send(ctx, entry, notification.Recipient{}); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("missing email err = %v, want ErrNoAddress", err)
	}
}
