package weft

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type sized interface {
	Size() int64
}

type named interface {
	DisplayName() string
}

type blob struct {
	name string
	data []byte
}

func (b *blob) Size() int64 { return int64(len(b.data)) }

func TestAs_RegisteredCapability(t *testing.T) {
	rt := New()
	ctx := context.Background()

	if err := RegisterCapability[sized, *blob](rt); err != nil {
		t.Fatalf("register: %v", err)
	}

	mk := Define("blob-mk", func(ctx context.Context, n int) (*blob, error) {
		return &blob{name: "b", data: make([]byte, n)}, nil
	})
	h := Bind(rt, mk, 8)

	ref, err := As[sized](ctx, h)
	if err != nil {
		t.Fatalf("As: %v", err)
	}
	if ref.Task() != h.Task() {
		t.Errorf("TraitRef task mismatch: %v vs %v", ref.Task(), h.Task())
	}
	if ref.Generation() != 1 {
		t.Errorf("expected derivation generation 1, got %d", ref.Generation())
	}

	view, err := ref.Resolve(ctx)
	if err != nil {
		t.Fatalf("ref resolve: %v", err)
	}
	if view.Size() != 8 {
		t.Errorf("expected size 8, got %d", view.Size())
	}
}

func TestAs_MissingCapability(t *testing.T) {
	rt := New()
	ctx := context.Background()

	if err := RegisterCapability[sized, *blob](rt); err != nil {
		t.Fatalf("register: %v", err)
	}

	mk := Define("blob-unnamed", func(ctx context.Context, _ int) (*blob, error) {
		return &blob{name: "x"}, nil
	})
	h := Bind(rt, mk, 0)

	_, err := As[named](ctx, h)
	var missing *NoSuchCapabilityError
	if !errors.As(err, &missing) {
		t.Fatalf("expected NoSuchCapabilityError, got %v", err)
	}
}

func TestAs_SeesNewGenerationAfterInvalidation(t *testing.T) {
	rt := New()
	ctx := context.Background()

	if err := RegisterCapability[sized, *blob](rt); err != nil {
		t.Fatalf("register: %v", err)
	}

	var size atomic.Int64
	size.Store(4)

	mk := Define("blob-growing", func(ctx context.Context, _ int) (*blob, error) {
		return &blob{data: make([]byte, size.Load())}, nil
	})
	h := Bind(rt, mk, 0)

	ref, err := As[sized](ctx, h)
	if err != nil {
		t.Fatalf("As: %v", err)
	}

	view, err := ref.Resolve(ctx)
	if err != nil || view.Size() != 4 {
		t.Fatalf("expected size 4, got %v (err=%v)", view, err)
	}

	// Repeated derivations before any invalidation agree on generation.
	again, err := As[sized](ctx, h)
	if err != nil {
		t.Fatalf("As again: %v", err)
	}
	if again.Generation() != ref.Generation() {
		t.Errorf("derivations disagree: %d vs %d", again.Generation(), ref.Generation())
	}

	// After invalidation the old reference dispatches the new value.
	size.Store(16)
	h.Invalidate()

	view, err = ref.Resolve(ctx)
	if err != nil {
		t.Fatalf("ref resolve after invalidation: %v", err)
	}
	if view.Size() != 16 {
		t.Errorf("stale TraitRef served old value: size %d, want 16", view.Size())
	}

	gen, _ := h.Generation()
	if gen != 2 {
		t.Errorf("expected generation 2, got %d", gen)
	}
}

func TestRegisterCapability_RejectsNonImplementingType(t *testing.T) {
	rt := New()

	type plain struct{ x int }
	if err := RegisterCapability[sized, plain](rt); err == nil {
		t.Fatal("expected registration to fail for a non-implementing type")
	}
}

func TestRegisterCapability_SealedAfterFirstResolve(t *testing.T) {
	rt := New()
	ctx := context.Background()

	mk := Define("blob-seal", func(ctx context.Context, _ int) (*blob, error) {
		return &blob{}, nil
	})
	h := Bind(rt, mk, 0)

	if _, err := h.Resolve(ctx); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	err := RegisterCapability[sized, *blob](rt)
	var stale *StaleRegistryError
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleRegistryError after first resolve, got %v", err)
	}
}

func TestRegisterAdapter(t *testing.T) {
	rt := New()
	ctx := context.Background()

	// string does not implement sized; the adapter supplies the view.
	err := RegisterAdapter[sized, string](rt, func(s string) sized {
		return &blob{data: []byte(s)}
	})
	if err != nil {
		t.Fatalf("register adapter: %v", err)
	}

	mk := Define("word", func(ctx context.Context, w string) (string, error) {
		return w, nil
	})
	h := Bind(rt, mk, "hello")

	ref, err := As[sized](ctx, h)
	if err != nil {
		t.Fatalf("As: %v", err)
	}
	view, err := ref.Resolve(ctx)
	if err != nil {
		t.Fatalf("ref resolve: %v", err)
	}
	if view.Size() != 5 {
		t.Errorf("expected adapted size 5, got %d", view.Size())
	}
}

func TestTraitRef_With(t *testing.T) {
	rt := New()
	ctx := context.Background()

	if err := RegisterCapability[sized, *blob](rt); err != nil {
		t.Fatalf("register: %v", err)
	}

	mk := Define("blob-with", func(ctx context.Context, n int) (*blob, error) {
		return &blob{data: make([]byte, n)}, nil
	})
	h := Bind(rt, mk, 3)

	ref, err := As[sized](ctx, h)
	if err != nil {
		t.Fatalf("As: %v", err)
	}

	var got int64
	if err := ref.With(ctx, func(s sized) error {
		got = s.Size()
		return nil
	}); err != nil {
		t.Fatalf("With: %v", err)
	}
	if got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}
