package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/fastpurge-client/pkg/batch"
)

func TestPurge_Lifecycle(t *testing.T) {
	chunks := []batch.Chunk{{Index: 0}, {Index: 1}}
	cancelled := false
	p := newPurge(chunks, func() { cancelled = true })

	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
	if p.Outcomes() != nil || p.Err() != nil {
		t.Error("Outcomes and Err should be nil before done")
	}
	select {
	case <-p.Done():
		t.Fatal("Done closed before finish")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() before done = %v, want deadline exceeded", err)
	}

	p.outcomes[0] = Outcome{Index: 0, Response: &Response{HTTPStatus: 201, PurgeID: "a"}}
	p.outcomes[1] = Outcome{Index: 1, Err: ErrRetryExhausted}
	p.finish()

	responses, err := p.Wait(context.Background())
	if len(responses) != 1 || responses[0].PurgeID != "a" {
		t.Errorf("responses = %+v, want the one success", responses)
	}
	var purgeErr *PurgeError
	if !errors.As(err, &purgeErr) || len(purgeErr.Failed) != 1 || purgeErr.Total != 2 {
		t.Errorf("err = %v, want PurgeError with 1 of 2 failed", err)
	}
	if !errors.Is(p.Err(), ErrRetryExhausted) {
		t.Errorf("Err() = %v", p.Err())
	}

	out := p.Outcomes()
	out[0].Index = 99
	if p.Outcomes()[0].Index != 0 {
		t.Error("Outcomes should return a copy")
	}

	p.Cancel()
	if !cancelled {
		t.Error("Cancel should call the purge cancel func")
	}
}

func TestPurge_AllSucceeded(t *testing.T) {
	p := newPurge([]batch.Chunk{{Index: 0}}, func() {})
	p.outcomes[0] = Outcome{Response: &Response{HTTPStatus: 201}}
	p.finish()

	responses, err := p.Wait(context.Background())
	if err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if len(responses) != 1 {
		t.Errorf("got %d responses, want 1", len(responses))
	}
}
