package mmu

import (
	"log"

	"github.com/sarchlab/kmem/mem/memory"
	"github.com/sarchlab/kmem/mem/vm/tlb"
	"github.com/sarchlab/kmem/sim"
)

// A Builder can build MMU component
type Builder struct {
	storage *memory.Storage
	tlbSize int
	cr3     uint64
}

// MakeBuilder creates a new builder
func MakeBuilder() Builder {
	return Builder{
		tlbSize: 64,
	}
}

// WithStorage sets the physical memory that the MMU walks and accesses.
func (b Builder) WithStorage(storage *memory.Storage) Builder {
	b.storage = storage
	return b
}

// WithTLBSize sets the number of translations the TLB can hold.
func (b Builder) WithTLBSize(n int) Builder {
	b.tlbSize = n
	return b
}

// WithCR3 sets the initial value of the root table register.
func (b Builder) WithCR3(cr3 uint64) Builder {
	b.cr3 = cr3
	return b
}

// Build returns a newly created MMU component
func (b Builder) Build(name string) *Comp {
	if b.storage == nil {
		log.Panicf("mmu %s requires a storage", name)
	}

	c := new(Comp)
	c.HookableBase = sim.NewHookableBase()
	c.name = name
	c.storage = b.storage
	c.tlb = tlb.New(b.tlbSize)
	c.cr3 = b.cr3

	return c
}
