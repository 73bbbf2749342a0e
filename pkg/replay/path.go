// Package replay implements sample reuse across SD-tree iterations: retained
// camera paths are recomputed against a newer DTree topology instead of being
// discarded, following one of a handful of mutually exclusive strategies.
package replay

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dgranger/pathguide/pkg/core"
	"github.com/dgranger/pathguide/pkg/logging"
)

var logger = logging.New("replay")

const epsilon = 1e-9

// RVertex is a single bounce recorded along a camera path, retained so the
// path can be replayed against a later DTree topology.
type RVertex struct {
	O core.Vec3 // hit point
	D core.Vec3 // outgoing (sampled) direction

	BsdfVal core.Vec3
	BsdfPdf float64
	WoPdf   float64 // mixed bsdf/guided pdf actually used to sample D

	IsDelta bool

	// Sc is a per-vertex statistical weight scalar, updated by reweight and
	// reject strategies as the vertex is replayed. Starts at 1.
	Sc float64
}

// RadianceRecord is emitted/environment/subsurface radiance discovered after
// a given vertex index along the path.
type RadianceRecord struct {
	VertexIndex int
	L           core.Vec3
	Pdf         float64 // pdf of the emitter/event that produced L, for MIS
}

// NEERecord is a direct-light (next-event-estimation) sample taken at a
// given vertex index.
type NEERecord struct {
	VertexIndex int
	L           core.Vec3
	Pdf         float64 // light-sampling pdf of the NEE direction
	Wo          core.Vec3
	BsdfVal     core.Vec3
	BsdfPdf     float64
}

// RPath is a single retained camera path plus everything recorded along it.
type RPath struct {
	Path            []RVertex
	RadianceRecords []RadianceRecord
	NEERecords      []NEERecord

	Active bool
	Iter   int
	Tag    uuid.UUID // correlates this path with dump/debug logs, never read by guiding math

	// AugmentedStartPos marks the path-buffer index at which the current
	// augmented-sample batch began; reject/augment strategies only replay
	// the prefix collected before it.
	AugmentedStartPos int
}

// NewRPath starts a fresh, active retained path for the given iteration.
func NewRPath(iter int) *RPath {
	return &RPath{
		Active: true,
		Iter:   iter,
		Tag:    uuid.New(),
	}
}

// Deactivate marks a path inactive; its records are no longer replayed or
// committed. This is an expected outcome of rejection or PDF underflow, not
// an error.
func (p *RPath) Deactivate() {
	p.Active = false
	p.Path = nil
	p.RadianceRecords = nil
	p.NEERecords = nil
}

// Restart reuses an existing path slot for a freshly rendered camera path in
// the given iteration, discarding whatever the slot held before.
func (p *RPath) Restart(iter int) {
	p.Path = p.Path[:0]
	p.RadianceRecords = nil
	p.NEERecords = nil
	p.Active = true
	p.Iter = iter
	p.AugmentedStartPos = 0
}

// Buffer holds a generation's retained paths. Growth (appending new path
// slots between iterations) is the only operation serialized by a mutex;
// per-path mutation during replay and collection is otherwise unsynchronized
// since each worker owns disjoint path indices.
type Buffer struct {
	mu    sync.Mutex
	paths []*RPath
	Tag   uuid.UUID
}

// NewBuffer creates an empty retained-path buffer tagged for this generation.
func NewBuffer() *Buffer {
	return &Buffer{Tag: uuid.New()}
}

// Grow appends n freshly-started paths for the given iteration, mirroring
// the teacher's SplatQueue buffer-growth slow path: the only place this type
// takes a lock.
func (b *Buffer) Grow(n int, iter int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.paths = append(b.paths, NewRPath(iter))
	}
}

// GrowTo grows the buffer so it holds at least target path slots, appending
// only the shortfall; a no-op if the buffer already meets target. Used to
// size the buffer to one slot per sample for the current iteration, which
// varies pass to pass as the SPP schedule doubles.
func (b *Buffer) GrowTo(target int, iter int) {
	b.mu.Lock()
	shortfall := target - len(b.paths)
	b.mu.Unlock()
	if shortfall > 0 {
		b.Grow(shortfall, iter)
	}
}

// Len returns the number of path slots currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.paths)
}

// At returns the path at index i. Callers own disjoint indices during a
// render pass, so no lock is taken here.
func (b *Buffer) At(i int) *RPath {
	return b.paths[i]
}

// ForEachActive invokes fn for every currently active path, in index order.
func (b *Buffer) ForEachActive(fn func(*RPath)) {
	for _, p := range b.paths {
		if p.Active {
			fn(p)
		}
	}
}
