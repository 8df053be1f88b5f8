package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Shutdown reaches the inbox from two sides: Close() during graceful server
// teardown and the loop's own context cancellation. Both together must not
// close the channel twice.
func TestProducerCloseThenCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewProducer([]string{"127.0.0.1:1"}, "test.audit", 4)
	p.Start(ctx)

	require.NotPanics(t, func() {
		p.Close()
		cancel()
		p.Close()
	})

	done := make(chan struct{})
	go func() {
		p.WaitClosed()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer loop did not exit")
	}
}

func TestProducerCancelAloneDrainsAndExits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewProducer([]string{"127.0.0.1:1"}, "test.audit", 4)
	p.Start(ctx)

	require.NotPanics(t, func() { cancel() })

	done := make(chan struct{})
	go func() {
		p.WaitClosed()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer loop did not exit")
	}
}
