package events

import (
	"context"
	"fmt"
	"testing"
)

type recorder struct {
	added    []AssetAdded
	removed  []AssetRemoved
	reorders []PositionsChanged
	fail     bool
}

func (r *recorder) AssetAdded(_ context.Context, ev AssetAdded) error {
	if r.fail {
		return fmt.Errorf("added failed")
	}
	r.added = append(r.added, ev)
	return nil
}

func (r *recorder) AssetRemoved(_ context.Context, ev AssetRemoved) error {
	if r.fail {
		return fmt.Errorf("removed failed")
	}
	r.removed = append(r.removed, ev)
	return nil
}

func (r *recorder) PositionsChanged(_ context.Context, ev PositionsChanged) error {
	if r.fail {
		return fmt.Errorf("reorder failed")
	}
	r.reorders = append(r.reorders, ev)
	return nil
}

func TestFanoutDispatchesToAll(t *testing.T) {
	t.Parallel()

	a, b := &recorder{}, &recorder{}
	f := NewFanout(a, b)
	ctx := context.Background()

	if err := f.AssetAdded(ctx, AssetAdded{Kind: KindImage, Model: "products", ObjectID: "1"}); err != nil {
		t.Fatalf("AssetAdded: %v", err)
	}
	if err := f.AssetRemoved(ctx, AssetRemoved{Kind: KindImage, Model: "products", ObjectID: "1"}); err != nil {
		t.Fatalf("AssetRemoved: %v", err)
	}
	if err := f.PositionsChanged(ctx, PositionsChanged{Kind: KindImage, Model: "products", ObjectID: "1"}); err != nil {
		t.Fatalf("PositionsChanged: %v", err)
	}

	for _, r := range []*recorder{a, b} {
		if len(r.added) != 1 || len(r.removed) != 1 || len(r.reorders) != 1 {
			t.Fatalf("recorder got %d/%d/%d events", len(r.added), len(r.removed), len(r.reorders))
		}
	}
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	t.Parallel()

	broken := &recorder{fail: true}
	healthy := &recorder{}
	f := NewFanout(broken, healthy)

	err := f.AssetAdded(context.Background(), AssetAdded{Kind: KindVideo})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(healthy.added) != 1 {
		t.Fatal("healthy notifier was skipped")
	}
}

type stubInvalidatorStore struct {
	calls []string
}

func (s *stubInvalidatorStore) InvalidateOwner(_ context.Context, model, objectID string) error {
	s.calls = append(s.calls, model+"/"+objectID)
	return nil
}

func TestCacheInvalidatorDropsOwnerKeys(t *testing.T) {
	t.Parallel()

	store := &stubInvalidatorStore{}
	inv := NewCacheInvalidator(store)
	ctx := context.Background()

	_ = inv.AssetAdded(ctx, AssetAdded{Model: "products", ObjectID: "7"})
	_ = inv.AssetRemoved(ctx, AssetRemoved{Model: "products", ObjectID: "7"})
	_ = inv.PositionsChanged(ctx, PositionsChanged{Model: "products", ObjectID: "7"})

	if len(store.calls) != 3 {
		t.Fatalf("calls = %v", store.calls)
	}
	for _, call := range store.calls {
		if call != "products/7" {
			t.Fatalf("unexpected call %q", call)
		}
	}
}

func TestNoopNeverFails(t *testing.T) {
	t.Parallel()

	var n Noop
	ctx := context.Background()
	if n.AssetAdded(ctx, AssetAdded{}) != nil ||
		n.AssetRemoved(ctx, AssetRemoved{}) != nil ||
		n.PositionsChanged(ctx, PositionsChanged{}) != nil {
		t.Fatal("noop returned an error")
	}
}
