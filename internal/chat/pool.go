package chat

import (
	"chat-bridge/pkg/apperr"
	"chat-bridge/pkg/logg"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const poolName = "AutomatonPool"

var ErrPoolClosed = errors.New("automaton pool closed")

// Factory builds a ready automaton on a fresh page.
type Factory func(ctx context.Context, id int) (*Automaton, error)

// Pool bounds concurrent turns to its size. Each slot holds either a ready
// automaton or nil, meaning the slot's automaton must be (re)built on the
// next Acquire. Acquire blocks until a slot frees up.
type Pool struct {
	slots   chan *Automaton
	factory Factory
	size    int
	nextID  atomic.Int64
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewPool builds size automatons in parallel. Pages that fail to build leave
// an empty slot that is retried lazily; the pool fails only if none succeed.
func NewPool(ctx context.Context, size int, factory Factory, logger *zap.Logger) (*Pool, error) {
	const op = "NewPool"

	if size < 1 {
		return nil, apperr.InvalidReqError(op, "size", fmt.Errorf("pool size must be positive, got %d", size))
	}

	p := &Pool{
		slots:   make(chan *Automaton, size),
		factory: factory,
		size:    size,
		logger:  logger.With(zap.String(logg.Layer, poolName)),
		done:    make(chan struct{}),
	}

	built := make([]*Automaton, size)
	g, gctx := errgroup.WithContext(ctx)

	for i := range size {
		id := int(p.nextID.Add(1))

		g.Go(func() error {
			a, err := factory(gctx, id)
			if err != nil {
				p.logger.Warn("Automaton build failed, slot left empty", zap.Int(logg.Instance, id), zap.Error(err))

				return nil
			}

			built[i] = a

			return nil
		})
	}

	_ = g.Wait()

	ready := 0
	for _, a := range built {
		if a != nil {
			ready++
		}

		p.slots <- a
	}

	if ready == 0 {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeUnavailable, "no_automaton_built")
	}

	p.logger.Info("Automaton pool ready", zap.Int("size", size), zap.Int("ready", ready))

	return p, nil
}

func (p *Pool) Size() int {
	return p.size
}

// Acquire suspends until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Automaton, error) {
	const op = "Acquire"

	var a *Automaton

	select {
	case <-ctx.Done():
		return nil, apperr.Wrap(op, apperr.CodeTimeout, ctx.Err(), map[string]any{
			apperr.MetaReason: "acquire_cancelled",
		})
	case <-p.done:
		return nil, ErrPoolClosed
	case a = <-p.slots:
	}

	if a != nil {
		return a, nil
	}

	id := int(p.nextID.Add(1))

	a, err := p.factory(ctx, id)
	if err != nil {
		p.put(nil)

		return nil, apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "automaton_rebuild_failed",
		})
	}

	p.logger.Info("Automaton rebuilt", zap.Int(logg.Instance, id))

	return a, nil
}

// Release returns a healthy automaton to the pool.
func (p *Pool) Release(a *Automaton) {
	p.put(a)
}

// Discard closes an automaton whose page failed and frees its slot for a
// rebuild on the next Acquire.
func (p *Pool) Discard(a *Automaton) {
	if a != nil {
		p.logger.Warn("Discarding automaton", zap.Int(logg.Instance, a.ID()))

		if err := a.Close(); err != nil {
			p.logger.Debug("Closing discarded page failed", zap.Error(err))
		}
	}

	p.put(nil)
}

func (p *Pool) put(a *Automaton) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		if a != nil {
			_ = a.Close()
		}

		return
	}

	p.slots <- a
}

// Close closes idle automatons. Automatons still checked out are closed when
// they come back.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.done)

	var errs []error

	for {
		select {
		case a := <-p.slots:
			if a == nil {
				continue
			}

			if err := a.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}
