package notification

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerNotifierOmitsBody(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := n.Send(context.Background(), Message{Kind: KindSignupToken, Destination: "a@x.com", Body: "secret-token"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "a@x.com") || !strings.Contains(out, KindSignupToken) {
		t.Fatalf("expected destination and kind in %q", out)
	}
	if strings.Contains(out, "secret-token") {
		t.Fatalf("body leaked into logs: %q", out)
	}
}

func TestNilLoggerNotifier(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("nil notifier should be a no-op: %v", err)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Send(context.Background(), Message{Kind: KindLockout})
	msgs := r.Messages()
	if len(msgs) != 1 || msgs[0].Kind != KindLockout {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}
