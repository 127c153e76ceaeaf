package weft

import (
	"context"

	"github.com/google/uuid"
)

type chainKey struct{}
type consumerKey struct{}
type slotKey struct{}

// resolveChain tracks the tasks executing on one logical call chain of a
// top-level request. Membership is the cycle check: if a resolve re-enters a
// TaskID already on its chain, waiting would deadlock, so the resolution
// fails with CycleError instead.
//
// Chains are immutable; extend copies so sibling resolutions inside one task
// body never observe each other's path.
type resolveChain struct {
	request string
	path    []TaskID
	members map[TaskID]struct{}
}

func newResolveChain() *resolveChain {
	return &resolveChain{
		request: uuid.NewString(),
		members: make(map[TaskID]struct{}),
	}
}

func (c *resolveChain) contains(id TaskID) bool {
	_, ok := c.members[id]
	return ok
}

func (c *resolveChain) extend(id TaskID) *resolveChain {
	next := &resolveChain{
		request: c.request,
		path:    make([]TaskID, 0, len(c.path)+1),
		members: make(map[TaskID]struct{}, len(c.members)+1),
	}
	next.path = append(next.path, c.path...)
	next.path = append(next.path, id)
	for member := range c.members {
		next.members[member] = struct{}{}
	}
	next.members[id] = struct{}{}
	return next
}

// cyclePath returns the chain's path closed with the re-entrant task.
func (c *resolveChain) cyclePath(id TaskID) []TaskID {
	path := make([]TaskID, 0, len(c.path)+1)
	path = append(path, c.path...)
	path = append(path, id)
	return path
}

func chainFrom(ctx context.Context) (*resolveChain, bool) {
	c, ok := ctx.Value(chainKey{}).(*resolveChain)
	return c, ok
}

func withChain(ctx context.Context, c *resolveChain) context.Context {
	return context.WithValue(ctx, chainKey{}, c)
}

// consumerFrom returns the TaskID currently executing on this context, used
// to attribute dependency edges for nested reads.
func consumerFrom(ctx context.Context) (TaskID, bool) {
	id, ok := ctx.Value(consumerKey{}).(TaskID)
	return id, ok
}

func withConsumer(ctx context.Context, id TaskID) context.Context {
	return context.WithValue(ctx, consumerKey{}, id)
}

// slotHeld reports whether the goroutine behind this context currently holds
// a worker slot. A waiter that holds one yields it while suspended so
// waiting never starves the pool.
func slotHeld(ctx context.Context) bool {
	held, ok := ctx.Value(slotKey{}).(bool)
	return ok && held
}

func withSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, slotKey{}, true)
}
