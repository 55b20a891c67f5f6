package vm

import (
	"github.com/cockpitvm/hypervisor/internal/vmerr"
)

// Spec §3 capacities.
const (
	GlobalsCapacity    = 64
	ArrayPoolCapacity  = 2048 // words
	MaxArrayDescriptor = 16
)

// arrayDescriptor tracks one bump-allocated range in the array pool
// (spec §3: "{offset, length, active}").
type arrayDescriptor struct {
	offset int
	length int
	active bool
}

// Memory is CockpitVM's VM memory model (C6): a dense global slot array, a
// bounded static array pool with descriptors, and bounds checking on every
// access. It is grounded on the teacher's probe-lang/lang/vm/memory.go
// linear-memory design (bump allocation, explicit bounds checks, scrub on
// free) but trades the teacher's arbitrary-size heap for the spec's fixed,
// allocation-free pool — there is no dynamic memory in the hot path
// (spec §1 Non-goals).
type Memory struct {
	globals [GlobalsCapacity]int32
	pool    [ArrayPoolCapacity]int32
	descs   [MaxArrayDescriptor]arrayDescriptor
	nDescs  int
	used    int // words consumed from pool, bump pointer
}

// NewMemory constructs a zeroed Memory instance.
func NewMemory() *Memory {
	return &Memory{}
}

// Reset zeros all storage and invalidates all descriptors (spec §4.6).
func (m *Memory) Reset() {
	for i := range m.globals {
		m.globals[i] = 0
	}
	for i := range m.pool {
		m.pool[i] = 0
	}
	for i := range m.descs {
		m.descs[i] = arrayDescriptor{}
	}
	m.nDescs = 0
	m.used = 0
}

// LoadGlobal reads globals[idx]. Unset slots read as 0 (spec §3); the only
// failure mode is an out-of-range index.
func (m *Memory) LoadGlobal(idx uint16) (int32, error) {
	if int(idx) >= GlobalsCapacity {
		return 0, vmerr.Newf(vmerr.MemoryBounds, "global index %d out of range", idx)
	}
	return m.globals[idx], nil
}

// StoreGlobal writes globals[idx].
func (m *Memory) StoreGlobal(idx uint16, v int32) error {
	if int(idx) >= GlobalsCapacity {
		return vmerr.Newf(vmerr.MemoryBounds, "global index %d out of range", idx)
	}
	m.globals[idx] = v
	return nil
}

// CreateArray bump-allocates size words from the pool and returns a new
// descriptor handle. Allocation is bump-only; there is no reclamation of
// pool space even when a descriptor is later marked inactive (spec §3).
func (m *Memory) CreateArray(size uint16) (handle uint16, err error) {
	if m.nDescs >= MaxArrayDescriptor {
		return 0, vmerr.Newf(vmerr.MemoryBounds, "array descriptor table full (%d)", MaxArrayDescriptor)
	}
	if m.used+int(size) > ArrayPoolCapacity {
		return 0, vmerr.Newf(vmerr.MemoryBounds, "array pool exhausted: used=%d want=%d cap=%d", m.used, size, ArrayPoolCapacity)
	}
	idx := m.nDescs
	m.descs[idx] = arrayDescriptor{offset: m.used, length: int(size), active: true}
	m.used += int(size)
	m.nDescs++
	return uint16(idx), nil
}

// FreeArray marks a descriptor inactive without reclaiming its pool space
// (spec §3: "active=false marks a logically freed slot that does not
// return its space").
func (m *Memory) FreeArray(handle uint16) error {
	d, err := m.descriptor(handle)
	if err != nil {
		return err
	}
	d.active = false
	m.descs[handle] = *d
	return nil
}

func (m *Memory) descriptor(handle uint16) (*arrayDescriptor, error) {
	if int(handle) >= m.nDescs {
		return nil, vmerr.Newf(vmerr.MemoryBounds, "array handle %d never allocated", handle)
	}
	return &m.descs[handle], nil
}

// LoadArray reads pool[descriptor(handle).offset + index]. Fails with
// MemoryBounds if the handle is unknown, inactive, or index is out of the
// descriptor's length (spec §8 invariant).
func (m *Memory) LoadArray(handle uint16, index uint16) (int32, error) {
	d, err := m.descriptor(handle)
	if err != nil {
		return 0, err
	}
	if !d.active || int(index) >= d.length {
		return 0, vmerr.Newf(vmerr.MemoryBounds, "array %d index %d out of range (len=%d active=%v)", handle, index, d.length, d.active)
	}
	return m.pool[d.offset+int(index)], nil
}

// StoreArray writes pool[descriptor(handle).offset + index].
func (m *Memory) StoreArray(handle uint16, index uint16, v int32) error {
	d, err := m.descriptor(handle)
	if err != nil {
		return err
	}
	if !d.active || int(index) >= d.length {
		return vmerr.Newf(vmerr.MemoryBounds, "array %d index %d out of range (len=%d active=%v)", handle, index, d.length, d.active)
	}
	m.pool[d.offset+int(index)] = v
	return nil
}

// UsedWords reports Σ (pool words consumed by bump allocation), which by
// construction is >= Σ active descriptor lengths (spec §3 invariant; the
// inequality rather than equality accounts for logically-freed-but-never-
// reclaimed descriptors).
func (m *Memory) UsedWords() int { return m.used }
