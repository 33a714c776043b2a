package cart

import (
	"context"
	"sync"
	"time"

	"storefront/internal/entity"
)

// Saver is the persistence contract for cart snapshots.
type Saver interface {
	SaveCart(ctx context.Context, session string, lines []entity.CartLine) error
	DeleteCart(ctx context.Context, session string) error
}

// Persister writes cart changes on a single background worker. Sessions are
// written in the order they first changed; a session that changes again before
// its write starts only keeps its latest snapshot. CartChanged never waits.
type Persister struct {
	saver   Saver
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	queue   []string
	pending map[string]Change
	wake    chan struct{}
	done    chan struct{}
}

func NewPersister(saver Saver, timeout time.Duration) *Persister {
	p := &Persister{
		saver:   saver,
		timeout: timeout,
		pending: make(map[string]Change),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Persister) CartChanged(change Change) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		logger.Warn().Msgf("Cart persister closed, dropping change for session %s", change.Session)
		return
	}
	if _, queued := p.pending[change.Session]; !queued {
		p.queue = append(p.queue, change.Session)
	}
	p.pending[change.Session] = change
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending is the number of sessions waiting to be written.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops accepting changes and waits for pending writes.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	<-p.done
}

func (p *Persister) run() {
	defer close(p.done)

	for {
		change, ok, closed := p.next()
		if ok {
			p.apply(change)
			continue
		}
		if closed {
			return
		}
		<-p.wake
	}
}

func (p *Persister) next() (Change, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return Change{}, false, p.closed
	}
	session := p.queue[0]
	p.queue = p.queue[1:]
	change := p.pending[session]
	delete(p.pending, session)
	return change, true, false
}

func (p *Persister) apply(change Change) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var err error
	if change.Kind == ChangeCleared || len(change.Lines) == 0 {
		err = p.saver.DeleteCart(ctx, change.Session)
	} else {
		err = p.saver.SaveCart(ctx, change.Session, change.Lines)
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error persisting cart for session %s", change.Session)
	}
}
