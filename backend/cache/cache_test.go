package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/backend/fixed"
)

type countingParams struct {
	*fixed.FixedChainContext
	calls int
}

func (c *countingParams) ProtocolParams(ctx context.Context) (backend.ProtocolParameters, error) {
	c.calls++
	return c.FixedChainContext.ProtocolParams(ctx)
}

func TestProtocolParamsCachedWithinTtl(t *testing.T) {
	inner := &countingParams{FixedChainContext: fixed.NewEmptyFixedChainContext()}
	cc := NewCachedChainContext(inner, time.Minute)
	current := time.Unix(1000, 0)
	cc.now = func() time.Time { return current }

	ctx := context.Background()
	first, err := cc.ProtocolParams(ctx)
	if err != nil {
		t.Fatal(err)
	}
	first.CostModels[2][0] = -1
	second, err := cc.ProtocolParams(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if second.CostModels[2][0] == -1 {
		t.Error("expected cached params to be isolated from callers")
	}

	current = current.Add(2 * time.Minute)
	if _, err := cc.ProtocolParams(ctx); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("expected refresh after ttl, got %d calls", inner.calls)
	}

	cc.Invalidate()
	if _, err := cc.ProtocolParams(ctx); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 3 {
		t.Errorf("expected refresh after invalidate, got %d calls", inner.calls)
	}
}
