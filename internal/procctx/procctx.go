// Package procctx is the kernel glue: per-address-space context
// (PROC1 cleanup hooks, the quit event count), a monotonic UID
// minter, and the table of currently live address spaces. It stands
// in for the process-management subsystem this module does not
// implement, exposing just the per-ASID state the storage and
// networking subsystems need.
package procctx

import (
	"sync"
	"sync/atomic"

	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/msg"
)

// CleanupHook runs when an address space exits, in registration
// order, mirroring PROC1's per-module exit callbacks.
type CleanupHook func(asid ktypes.ASID)

// Context is the per-address-space state kernel entry points need:
// the address-space id and the quit latch used by every sleeping wait.
type Context struct {
	ASID ktypes.ASID
	Quit *msg.QuitLatch
}

// Table tracks every live address space and the cleanup hooks run on
// exit.
type Table struct {
	mu    sync.Mutex
	ctxs  map[ktypes.ASID]*Context
	hooks []CleanupHook
}

func NewTable() *Table {
	return &Table{ctxs: make(map[ktypes.ASID]*Context)}
}

// RegisterHook adds a cleanup hook invoked by Exit for every address
// space, in registration order. Hooks are expected to be idempotent
// no-ops for address spaces they have no state for.
func (t *Table) RegisterHook(h CleanupHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, h)
}

// Create allocates a Context for a newly created address space.
func (t *Table) Create(asid ktypes.ASID) *Context {
	c := &Context{ASID: asid, Quit: msg.NewQuitLatch()}
	t.mu.Lock()
	t.ctxs[asid] = c
	t.mu.Unlock()
	return c
}

// Get returns the Context for asid, or nil if it has none (already
// exited or never created).
func (t *Table) Get(asid ktypes.ASID) *Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctxs[asid]
}

// Exit runs every registered cleanup hook for asid, then drops its
// context.
func (t *Table) Exit(asid ktypes.ASID) {
	t.mu.Lock()
	hooks := append([]CleanupHook(nil), t.hooks...)
	delete(t.ctxs, asid)
	t.mu.Unlock()
	for _, h := range hooks {
		h(asid)
	}
}

// Minter mints 64-bit UIDs: a per-node monotonic counter in the bits
// above the low 20, the minting node's id packed into the low 20 bits
// of the low half.
type Minter struct {
	node    uint32
	counter uint64
}

func NewMinter(node ktypes.NodeNum) *Minter {
	return &Minter{node: uint32(node) & ktypes.NodeMask}
}

// Mint returns the next UID for this node. UIDs mint monotonically
// within a node's lifetime; uniqueness across nodes relies on every
// node having a distinct id.
func (m *Minter) Mint() ktypes.UID {
	n := atomic.AddUint64(&m.counter, 1) << 20
	return ktypes.UID{
		High: uint32(n >> 32),
		Low:  uint32(n) | m.node,
	}
}
