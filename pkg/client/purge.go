package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Sternrassler/fastpurge-client/pkg/batch"
)

// Response is the body the Fast Purge API returns for an accepted purge.
type Response struct {
	HTTPStatus       int      `json:"httpStatus"`
	Detail           string   `json:"detail"`
	EstimatedSeconds *float64 `json:"estimatedSeconds,omitempty"`
	PurgeID          string   `json:"purgeId"`
	SupportID        string   `json:"supportId"`

	// Raw is the response body as received.
	Raw json.RawMessage `json:"-"`
}

// Outcome is the result of one chunk of a purge.
type Outcome struct {
	Index   int
	Objects []string

	// Response is nil when the chunk failed before the API accepted it.
	Response *Response
	Err      error

	// Attempts counts send attempts for this chunk. Waiting on the cooldown
	// or rate limiter is not an attempt.
	Attempts int

	// EstimatedComplete is when the API expects the purge to have finished.
	EstimatedComplete time.Time
}

// Purge is a handle on a submitted purge. It completes once every chunk
// has resolved.
type Purge struct {
	done     chan struct{}
	cancel   context.CancelFunc
	outcomes []Outcome
	err      error
}

func newPurge(chunks []batch.Chunk, cancel context.CancelFunc) *Purge {
	return &Purge{
		done:     make(chan struct{}),
		cancel:   cancel,
		outcomes: make([]Outcome, len(chunks)),
	}
}

// finish records the aggregate result and releases waiters.
func (p *Purge) finish() {
	var failed []Outcome
	for _, o := range p.outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	if len(failed) > 0 {
		p.err = &PurgeError{Failed: failed, Total: len(p.outcomes)}
	}
	close(p.done)
}

// Done is closed when the purge has completed or failed.
func (p *Purge) Done() <-chan struct{} {
	return p.done
}

// Len returns the number of chunks the purge was split into.
func (p *Purge) Len() int {
	return len(p.outcomes)
}

// Wait blocks until the purge completes or ctx is done. It returns the API
// responses of the chunks that succeeded, in chunk order, and a *PurgeError
// if any chunk failed.
func (p *Purge) Wait(ctx context.Context) ([]Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
	}

	responses := make([]Response, 0, len(p.outcomes))
	for _, o := range p.outcomes {
		if o.Err == nil && o.Response != nil {
			responses = append(responses, *o.Response)
		}
	}
	return responses, p.err
}

// Err returns the aggregate error once the purge is done, nil before.
func (p *Purge) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Outcomes returns per-chunk results once the purge is done, nil before.
func (p *Purge) Outcomes() []Outcome {
	select {
	case <-p.done:
		out := make([]Outcome, len(p.outcomes))
		copy(out, p.outcomes)
		return out
	default:
		return nil
	}
}

// Cancel abandons outstanding chunks. Chunks already accepted by the API
// are not undone.
func (p *Purge) Cancel() {
	p.cancel()
}
