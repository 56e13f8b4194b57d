package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

func TestRegisterSendDeregister(t *testing.T) {
	r := New(4, nil)
	c := r.Register()
	if c.ID == "" {
		t.Fatal("empty conn id")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	if err := r.SendEvent(c.ID, protocol.MsgPong, protocol.Pong{ServerTimeMs: 42}); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	frame := <-c.Outbox()
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		t.Fatalf("decode queued frame: %v", err)
	}
	if env.T != protocol.MsgPong {
		t.Fatalf("queued frame type %q, want %q", env.T, protocol.MsgPong)
	}

	r.Deregister(c.ID)
	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after deregister")
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after deregister", r.Len())
	}
	// Idempotent.
	r.Deregister(c.ID)
}

func TestSendToUnknownConn(t *testing.T) {
	r := New(4, nil)
	if err := r.Send("nope", []byte("{}")); !errors.Is(err, ErrConnNotFound) {
		t.Fatalf("err = %v, want ErrConnNotFound", err)
	}
}

func TestOverflowDropsConnection(t *testing.T) {
	r := New(2, nil)
	c := r.Register()

	// Fill the queue without a drainer, then overflow it.
	for i := 0; i < 2; i++ {
		if err := r.Send(c.ID, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := r.Send(c.ID, []byte(`{"n":2}`)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("overflowing conn not closed")
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, overflowing conn still registered", r.Len())
	}
	if err := r.Send(c.ID, []byte("{}")); !errors.Is(err, ErrConnNotFound) {
		t.Fatalf("err after drop = %v, want ErrConnNotFound", err)
	}
}

func TestSendAfterCloseReportsClosed(t *testing.T) {
	r := New(4, nil)
	c := r.Register()
	c.Close()
	if err := r.Send(c.ID, []byte("{}")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("err = %v, want ErrConnClosed", err)
	}
}

func TestCloseAll(t *testing.T) {
	r := New(4, nil)
	a, b := r.Register(), r.Register()
	r.CloseAll()
	for _, c := range []*Conn{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("conn %s not closed", c.ID)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after CloseAll", r.Len())
	}
}
