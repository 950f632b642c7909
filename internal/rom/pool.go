package rom

import (
	"context"
	"sync"
	"time"
)

// poolPollInterval is how long Take sleeps between checks for a free handle.
const poolPollInterval = 10 * time.Millisecond

// NodePool is a checked-out/released pool of vault handles. Take busy-polls
// until a handle is free; under sustained contention waiters are served in
// no particular order.
type NodePool struct {
	mu    sync.Mutex
	free  []Vault
	nodes []Vault
}

// NewNodePool creates a pool holding all given vaults.
func NewNodePool(nodes ...Vault) *NodePool {
	return &NodePool{
		free:  append([]Vault(nil), nodes...),
		nodes: append([]Vault(nil), nodes...),
	}
}

// Nodes returns every vault in the pool regardless of checkout state.
func (p *NodePool) Nodes() []Vault {
	return append([]Vault(nil), p.nodes...)
}

// Take checks out the handle at the front of the queue, blocking until one
// is available or ctx is done.
func (p *NodePool) Take(ctx context.Context) (Vault, error) {
	for {
		if node := p.tryTake(); node != nil {
			return node, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poolPollInterval):
		}
	}
}

func (p *NodePool) tryTake() Vault {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil
	}
	node := p.free[0]
	p.free = p.free[1:]
	return node
}

// Release returns a handle to the back of the queue.
func (p *NodePool) Release(node Vault) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, node)
}

// Available returns the number of free handles.
func (p *NodePool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
