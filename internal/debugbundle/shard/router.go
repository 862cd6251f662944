// Package shard pins every debug-bundle operation to a single service
// actor goroutine (component D, spec.md §4.D) — the Go analogue of a
// single-writer-per-shard runtime. Every public operation is dispatched
// onto the actor's command channel and its result delivered back to the
// calling goroutine; ordering across callers is first-come-first-served
// by channel delivery, giving the FIFO guarantee spec.md §4.D/§5 asks
// for without a separate explicit mutex.
package shard

import (
	"context"
	"sync"
)

// Gate is the counting barrier from spec.md §4.D/§9: every public
// operation — and the background wait/metadata task the lifecycle
// controller spawns on a successful Initiate — holds its own ticket, so
// Shutdown can drain both.
type Gate struct {
	wg sync.WaitGroup
}

// Enter admits one in-flight operation.
func (g *Gate) Enter() { g.wg.Add(1) }

// Leave releases one in-flight operation's ticket.
func (g *Gate) Leave() { g.wg.Done() }

// Wait blocks until every admitted operation has called Leave.
func (g *Gate) Wait() { g.wg.Wait() }

type command struct {
	fn    func(ctx context.Context) (any, error)
	ctx   context.Context
	resp  chan result
	leave func()
}

type result struct {
	val any
	err error
}

// Router owns the single service-shard actor goroutine.
type Router struct {
	gate Gate
	cmds chan command
	stop chan struct{}
}

// New starts the actor loop and returns a ready-to-use Router.
func New() *Router {
	r := &Router{
		cmds: make(chan command),
		stop: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Router) run() {
	for {
		select {
		case cmd := <-r.cmds:
			val, err := cmd.fn(cmd.ctx)
			cmd.resp <- result{val: val, err: err}
			cmd.leave()
		case <-r.stop:
			return
		}
	}
}

// Gate returns the router's gate, for callers that need to register a
// ticket outside of Dispatch (e.g. a background task spawned by an
// operation that has already returned).
func (r *Router) Gate() *Gate { return &r.gate }

// Dispatch routes fn to the service-shard actor and awaits its result,
// holding a gate ticket for fn's entire in-flight duration per spec.md
// §4.D/§4.E step 1 and §9 ("Shutdown waits via the gate"). Every public
// operation (initiate/cancel/status/path/delete) goes through Dispatch
// before touching any shared state.
//
// ctx cancellation only ever affects how soon Dispatch *returns* to its
// caller — it never cuts fn's execution short or releases the ticket
// early. Once the command has been handed to the actor (the send on
// r.cmds succeeds), the actor goroutine owns fn and is the only one
// that calls leave, after fn has actually finished; a caller that bails
// out on ctx.Done() while fn is still running gets its ctx error back
// immediately, but the gate stays held until the actor is done. If the
// command is never handed to the actor at all (ctx.Done fires first,
// racing the send), fn never ran, so Dispatch itself releases the
// ticket it took out for the attempt.
func (r *Router) Dispatch(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	r.gate.Enter()

	resp := make(chan result, 1)
	leave := func() { r.gate.Leave() }

	select {
	case r.cmds <- command{fn: fn, ctx: ctx, resp: resp, leave: leave}:
		// Handed off: the actor now owns leave() and will call it
		// exactly once, after fn returns.
	case <-ctx.Done():
		leave()
		return nil, ctx.Err()
	}

	select {
	case res := <-resp:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops admitting the actor loop's work once every in-flight
// operation (including background-task tickets) has drained.
func (r *Router) Shutdown() {
	r.gate.Wait()
	close(r.stop)
}
