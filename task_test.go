package weft

import (
	"context"
	"testing"
)

func TestTaskID_DerivedFromFunctionAndArgs(t *testing.T) {
	a := newTaskID("square", "4")
	b := newTaskID("square", "4")
	c := newTaskID("square", "5")
	d := newTaskID("cube", "4")

	if a != b {
		t.Error("equal identity inputs must yield equal TaskIDs")
	}
	if a == c {
		t.Error("different args must yield different TaskIDs")
	}
	if a == d {
		t.Error("different functions must yield different TaskIDs")
	}
	if a.Digest() == 0 {
		t.Error("digest should be populated")
	}
	if a.Func() != "square" {
		t.Errorf("expected function name square, got %q", a.Func())
	}
}

func TestTaskID_ZeroValue(t *testing.T) {
	var id TaskID
	if !id.IsZero() {
		t.Error("zero value should report IsZero")
	}
	if id.String() != "task(<zero>)" {
		t.Errorf("unexpected zero string: %q", id.String())
	}
}

func TestTaskID_StructArgs(t *testing.T) {
	type key struct {
		Name string
		N    int
	}

	a := newTaskID("lookup", encodeArgs(key{Name: "x", N: 1}))
	b := newTaskID("lookup", encodeArgs(key{Name: "x", N: 1}))
	c := newTaskID("lookup", encodeArgs(key{Name: "x", N: 2}))

	if a != b {
		t.Error("structurally equal struct args must share a TaskID")
	}
	if a == c {
		t.Error("different struct args must not share a TaskID")
	}
}

func TestDefine_Tags(t *testing.T) {
	owner := NewTag[string]("owner")

	task := Define("tagged", func(ctx context.Context, _ int) (int, error) {
		return 0, nil
	}, WithTaskTag(owner, "core"))

	got, ok := owner.Get(task)
	if !ok || got != "core" {
		t.Errorf("expected tag owner=core, got %q (ok=%v)", got, ok)
	}

	if owner.GetOrDefault(task, "fallback") != "core" {
		t.Error("GetOrDefault should prefer the set value")
	}

	other := NewTag[string]("missing")
	if other.GetOrDefault(task, "fallback") != "fallback" {
		t.Error("GetOrDefault should fall back when unset")
	}
}

func TestBind_ExposesTaskTagsThroughRuntime(t *testing.T) {
	rt := New()
	owner := NewTag[string]("owner")

	task := Define("tagged-bind", func(ctx context.Context, _ int) (int, error) {
		return 0, nil
	}, WithTaskTag(owner, "infra"))

	h := Bind(rt, task, 0)

	val, ok := rt.TaskTag(h.Task(), owner)
	if !ok || val.(string) != "infra" {
		t.Errorf("expected owner=infra via runtime, got %v (ok=%v)", val, ok)
	}
}

func TestBind_SnapshotsTags(t *testing.T) {
	rt := New()
	owner := NewTag[string]("owner")

	task := Define("tag-snapshot", func(ctx context.Context, _ int) (int, error) {
		return 0, nil
	}, WithTaskTag(owner, "infra"))

	h := Bind(rt, task, 0)

	// Mutating the task function after binding must not reach the binding:
	// bindings are read concurrently by computes.
	owner.Set(task, "platform")

	val, ok := rt.TaskTag(h.Task(), owner)
	if !ok || val.(string) != "infra" {
		t.Errorf("expected the bind-time tag value infra, got %v (ok=%v)", val, ok)
	}
}
