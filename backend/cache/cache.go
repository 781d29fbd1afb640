package cache

import (
	"context"
	"sync"
	"time"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// CachedChainContext wraps another ChainContext with time-based caching of
// the protocol parameters. Lookups and evaluation always reach the inner
// backend.
type CachedChainContext struct {
	inner backend.ChainContext
	ttl   time.Duration
	now   func() time.Time

	mu            sync.Mutex
	cachedParams  *backend.ProtocolParameters
	paramsCacheAt time.Time
}

// NewCachedChainContext creates a new cached wrapper around the given ChainContext.
func NewCachedChainContext(inner backend.ChainContext, ttl time.Duration) *CachedChainContext {
	return &CachedChainContext{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *CachedChainContext) ProtocolParams(ctx context.Context) (backend.ProtocolParameters, error) {
	c.mu.Lock()
	if c.cachedParams != nil && c.now().Sub(c.paramsCacheAt) < c.ttl {
		pp := c.cachedParams.Clone()
		c.mu.Unlock()
		return pp, nil
	}
	c.mu.Unlock()

	pp, err := c.inner.ProtocolParams(ctx)
	if err != nil {
		return pp, err
	}

	cached := pp.Clone()
	c.mu.Lock()
	c.cachedParams = &cached
	c.paramsCacheAt = c.now()
	c.mu.Unlock()

	return pp, nil
}

// Invalidate drops the cached parameters.
func (c *CachedChainContext) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedParams = nil
}

func (c *CachedChainContext) NetworkId() uint8 {
	return c.inner.NetworkId()
}

func (c *CachedChainContext) AddressUtxos(ctx context.Context, addr common.Address) ([]primitives.Utxo, error) {
	return c.inner.AddressUtxos(ctx, addr)
}

func (c *CachedChainContext) Utxos(ctx context.Context, inputs []primitives.Input) ([]primitives.Utxo, error) {
	return c.inner.Utxos(ctx, inputs)
}

func (c *CachedChainContext) Utxo(ctx context.Context, input primitives.Input) (*primitives.Utxo, error) {
	return c.inner.Utxo(ctx, input)
}

func (c *CachedChainContext) Evaluate(ctx context.Context, tx []byte) ([]backend.Evaluation, error) {
	return c.inner.Evaluate(ctx, tx)
}

func (c *CachedChainContext) SubmitTx(ctx context.Context, tx []byte) (common.Blake2b256, error) {
	return c.inner.SubmitTx(ctx, tx)
}
