// Pool manages reusable device transports for hosts that drive several
// controllers (or reopen sessions against the same controller) without
// paying a dial per session.
//
// Design: a buffered channel as a natural FIFO queue. Buffered channels are
// concurrency-safe and blocking on empty is built-in. Each borrowed
// transport is used exclusively by one session until returned.
package transport

import (
	"fmt"
	"sync"
)

// Pool holds reusable transports for a single device endpoint.
type Pool struct {
	mu      sync.Mutex
	conns   chan *PoolTransport
	addr    string
	max     int
	cur     int
	factory func(addr string) (Transport, error)
}

// PoolTransport wraps a Transport with pool bookkeeping.
type PoolTransport struct {
	Transport
	pool     *Pool
	unusable bool
}

// MarkUnusable flags the transport so the pool discards it on return.
// Sessions call this after any I/O or protocol failure, since a desynced
// byte stream cannot be reused.
func (p *PoolTransport) MarkUnusable() { p.unusable = true }

// NewPool creates a pool of at most max transports to addr. Transports are
// created lazily via factory; pass nil to default to TCP.
func NewPool(addr string, max int, factory func(addr string) (Transport, error)) *Pool {
	if factory == nil {
		factory = func(addr string) (Transport, error) { return NewTCP(addr), nil }
	}
	return &Pool{
		conns:   make(chan *PoolTransport, max),
		addr:    addr,
		max:     max,
		factory: factory,
	}
}

// Get borrows a transport: an idle one if available, a fresh one while
// under the limit, otherwise it blocks until a transport is returned.
func (p *Pool) Get() (*PoolTransport, error) {
	select {
	case t := <-p.conns:
		if t.unusable {
			p.drop()
			return p.createNew()
		}
		return t, nil
	default:
		p.mu.Lock()
		under := p.cur < p.max
		p.mu.Unlock()
		if under {
			return p.createNew()
		}
		return <-p.conns, nil
	}
}

// Put returns a borrowed transport. Unusable transports are closed and
// discarded instead.
func (p *Pool) Put(t *PoolTransport) {
	if t.unusable {
		t.Close()
		p.drop()
		return
	}
	p.conns <- t
}

// Close shuts down the pool and closes every idle transport.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.conns)
	for t := range p.conns {
		t.Close()
		p.cur--
	}
	return nil
}

func (p *Pool) drop() {
	p.mu.Lock()
	p.cur--
	p.mu.Unlock()
}

func (p *Pool) createNew() (*PoolTransport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur >= p.max {
		return nil, fmt.Errorf("transport pool for %s exhausted", p.addr)
	}
	t, err := p.factory(p.addr)
	if err != nil {
		return nil, err
	}
	p.cur++
	return &PoolTransport{Transport: t, pool: p}, nil
}
