package mailer

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"
)

// Message is a single-recipient email. From may be empty to use the
// relay's default sender.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// maxParallel bounds concurrent relay calls for one fan-out.
const maxParallel = 8

// SendEach sends every message independently. errs[i] holds the outcome of
// msgs[i]; a failed send is logged and never stops the others.
func SendEach(ctx context.Context, n Notifier, msgs []Message) []error {
	errs := make([]error, len(msgs))
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, msg := range msgs {
		g.Go(func() error {
			if err := n.Send(ctx, msg); err != nil {
				log.Printf("mailer: send to %s failed: %v", msg.To, err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Failed counts non-nil entries in a SendEach result.
func Failed(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
