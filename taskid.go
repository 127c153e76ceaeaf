package weft

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// TaskID identifies a memoized computation: a task function applied to a
// specific set of arguments. Two bindings of the same function with
// structurally equal arguments produce the same TaskID, so it serves as the
// memoization key into the cell store.
//
// TaskIDs are immutable values and safe to use as map keys.
type TaskID struct {
	fn  string
	key string
	sum uint64
}

func newTaskID(fn, key string) TaskID {
	d := xxhash.New()
	_, _ = d.WriteString(fn)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(key)
	return TaskID{fn: fn, key: key, sum: d.Sum64()}
}

// Func returns the name of the task function this ID belongs to.
func (id TaskID) Func() string {
	return id.fn
}

// Digest returns the 64-bit hash of the task identity. The cell store uses
// it to pick a shard; it is also handy for compact log fields.
func (id TaskID) Digest() uint64 {
	return id.sum
}

// IsZero reports whether the ID is the zero value (not produced by a bind).
func (id TaskID) IsZero() bool {
	return id.fn == "" && id.key == "" && id.sum == 0
}

func (id TaskID) String() string {
	if id.IsZero() {
		return "task(<zero>)"
	}
	return fmt.Sprintf("%s(%s)#%08x", id.fn, id.key, id.sum&0xffffffff)
}

// encodeArgs produces the canonical argument encoding used for TaskID
// derivation. Arguments are constrained to comparable types, so the Go
// syntax representation is stable for structurally equal values.
func encodeArgs(args any) string {
	return fmt.Sprintf("%#v", args)
}
