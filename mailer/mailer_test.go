package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (n *recordingNotifier) Send(ctx context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg.To)
	if n.fail[msg.To] {
		return errors.New("relay down")
	}
	return nil
}

func TestSendEachContinuesPastFailures(t *testing.T) {
	n := &recordingNotifier{fail: map[string]bool{"b@example.com": true}}
	msgs := []Message{{To: "a@example.com"}, {To: "b@example.com"}, {To: "c@example.com"}}

	errs := SendEach(context.Background(), n, msgs)

	if len(n.sent) != 3 {
		t.Fatalf("attempts = %d, want 3", len(n.sent))
	}
	if errs[0] != nil || errs[1] == nil || errs[2] != nil {
		t.Fatalf("errs = %v, want only the second to fail", errs)
	}
	if Failed(errs) != 1 {
		t.Fatalf("Failed = %d, want 1", Failed(errs))
	}
}
