// Package mmu provides an x86_64-style memory management unit that walks a
// 4-level page table hierarchy stored in physical memory.
package mmu

import (
	"errors"

	"github.com/sarchlab/kmem/mem/memory"
	"github.com/sarchlab/kmem/mem/vm/tlb"
	"github.com/sarchlab/kmem/sim"
)

const (
	pageShift = 12
	pageSize  = 1 << pageShift
	addrMask  = uint64(0x000f_ffff_ffff_f000)

	bitPresent  = uint64(1) << 0
	bitWritable = uint64(1) << 1
	bitHuge     = uint64(1) << 7
	bitGlobal   = uint64(1) << 8
)

var (
	// HookPosCR3Write marks a write to the root table register.
	HookPosCR3Write = &sim.HookPos{Name: "CR3Write"}

	// HookPosTLBFlush marks a flush of one or all TLB entries.
	HookPosTLBFlush = &sim.HookPos{Name: "TLBFlush"}

	// HookPosPageFault marks a failed translation.
	HookPosPageFault = &sim.HookPos{Name: "PageFault"}
)

// Stats counts MMU activity.
type Stats struct {
	Walks      uint64
	Faults     uint64
	CR3Writes  uint64
	TLBFlushes uint64
	TLB        tlb.Stats
}

// A WalkStep is one table entry read during a page walk.
type WalkStep struct {
	Level     int
	TableAddr uint64
	Index     uint64
	Entry     uint64
}

// Comp is the MMU of the simulated machine. All data accesses of the kernel
// go through it.
//
// The MMU never sets the accessed and dirty bits. Write protection is always
// enforced, as with CR0.WP set.
type Comp struct {
	*sim.HookableBase

	name    string
	storage *memory.Storage
	tlb     *tlb.TLB
	cr3     uint64
	stats   Stats
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// Storage returns the physical memory behind the MMU.
func (c *Comp) Storage() *memory.Storage {
	return c.storage
}

// TLB returns the translation cache of the MMU.
func (c *Comp) TLB() *tlb.TLB {
	return c.tlb
}

// Stats returns the activity counters.
func (c *Comp) Stats() Stats {
	s := c.stats
	s.TLB = c.tlb.Stats()

	return s
}

// ReadCR3 returns the physical address of the active root table.
func (c *Comp) ReadCR3() uint64 {
	return c.cr3
}

// WriteCR3 switches the active root table. Like the hardware, it drops all
// non-global cached translations.
func (c *Comp) WriteCR3(value uint64) {
	old := c.cr3
	c.cr3 = value
	c.stats.CR3Writes++
	c.tlb.Flush(true)

	if c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    HookPosCR3Write,
			Item:   value,
			Detail: old,
		})
	}
}

// FlushTLBEntry drops the cached translation of the page containing vAddr.
func (c *Comp) FlushTLBEntry(vAddr uint64) {
	c.tlb.Invalidate(vAddr >> pageShift)
	c.stats.TLBFlushes++

	if c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    HookPosTLBFlush,
			Item:   vAddr,
		})
	}
}

// FlushTLB drops all cached translations, including global ones.
func (c *Comp) FlushTLB() {
	n := c.tlb.Flush(false)
	c.stats.TLBFlushes++

	if c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    HookPosTLBFlush,
			Detail: n,
		})
	}
}

// Translate converts a virtual address to a physical address. A TLB hit is
// served without looking at the page tables.
func (c *Comp) Translate(vAddr uint64, access Access) (uint64, error) {
	if !isCanonical(vAddr) {
		return 0, c.fault(&PageFault{
			VAddr: vAddr, Access: access, Reason: FaultNonCanonical})
	}

	vpn := vAddr >> pageShift
	offset := vAddr & (pageSize - 1)

	if e, found := c.tlb.Lookup(vpn); found {
		if access == AccessWrite && !e.Writable {
			return 0, c.fault(&PageFault{
				VAddr: vAddr, Access: access, Reason: FaultWriteProtected})
		}

		return e.PFN<<pageShift | offset, nil
	}

	steps, err := c.Walk(vAddr)
	if err != nil {
		var pf *PageFault
		if errors.As(err, &pf) {
			pf.Access = access
		}

		return 0, c.fault(pf)
	}

	pAddr, writable, global := resolve(vAddr, steps)
	c.tlb.Insert(tlb.Entry{
		VPN:      vpn,
		PFN:      pAddr >> pageShift,
		Writable: writable,
		Global:   global,
	})

	if access == AccessWrite && !writable {
		return 0, c.fault(&PageFault{
			VAddr:  vAddr,
			Access: access,
			Reason: FaultWriteProtected,
			Level:  steps[len(steps)-1].Level,
		})
	}

	return pAddr, nil
}

// Walk reads the table entries that map vAddr, starting from the root table.
// It stops at the first entry that is not present or that maps a huge page.
// Walk bypasses the TLB and does not fill it.
func (c *Comp) Walk(vAddr uint64) ([]WalkStep, error) {
	if !isCanonical(vAddr) {
		return nil, &PageFault{VAddr: vAddr, Reason: FaultNonCanonical}
	}

	c.stats.Walks++

	steps := make([]WalkStep, 0, 4)
	table := c.cr3 & addrMask

	for level := 4; level >= 1; level-- {
		index := (vAddr >> (pageShift + 9*uint(level-1))) & 0x1ff

		entry, err := c.storage.ReadUint64(table + index*8)
		if err != nil {
			return steps, &PageFault{
				VAddr: vAddr, Reason: FaultOutOfMemory, Level: level}
		}

		steps = append(steps, WalkStep{
			Level:     level,
			TableAddr: table,
			Index:     index,
			Entry:     entry,
		})

		if entry&bitPresent == 0 {
			return steps, &PageFault{
				VAddr: vAddr, Reason: FaultNotPresent, Level: level}
		}

		if (level == 3 || level == 2) && entry&bitHuge != 0 {
			return steps, nil
		}

		table = entry & addrMask
	}

	return steps, nil
}

// Lookup translates vAddr from the page tables alone. Unlike Translate it
// does not use or fill the TLB, and a failure is not counted as a page fault.
// The walk steps are returned in both cases.
func (c *Comp) Lookup(vAddr uint64) (
	pAddr uint64,
	writable bool,
	steps []WalkStep,
	err error,
) {
	steps, err = c.Walk(vAddr)
	if err != nil {
		return 0, false, steps, err
	}

	pAddr, writable, _ = resolve(vAddr, steps)

	return pAddr, writable, steps, nil
}

// resolve computes the physical address of a successful walk. A page is
// writable only if every entry on the way allows writing.
func resolve(vAddr uint64, steps []WalkStep) (pAddr uint64, writable, global bool) {
	writable = true
	for _, s := range steps {
		writable = writable && s.Entry&bitWritable != 0
	}

	leaf := steps[len(steps)-1]
	global = leaf.Entry&bitGlobal != 0
	span := uint64(pageSize) << (9 * uint(leaf.Level-1))
	pAddr = (leaf.Entry & addrMask &^ (span - 1)) | (vAddr & (span - 1))

	return pAddr, writable, global
}

func (c *Comp) fault(pf *PageFault) error {
	c.stats.Faults++

	if c.NumHooks() > 0 {
		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    HookPosPageFault,
			Item:   pf,
		})
	}

	return pf
}

func isCanonical(vAddr uint64) bool {
	upper := vAddr >> 47
	return upper == 0 || upper == 0x1ffff
}

// ReadUint64 reads an aligned 64-bit word at a virtual address.
func (c *Comp) ReadUint64(vAddr uint64) (uint64, error) {
	pAddr, err := c.Translate(vAddr, AccessRead)
	if err != nil {
		return 0, err
	}

	return c.storage.ReadUint64(pAddr)
}

// WriteUint64 writes an aligned 64-bit word at a virtual address.
func (c *Comp) WriteUint64(vAddr uint64, value uint64) error {
	pAddr, err := c.Translate(vAddr, AccessWrite)
	if err != nil {
		return err
	}

	return c.storage.WriteUint64(pAddr, value)
}

// Read reads length bytes starting at a virtual address. The range may cross
// page boundaries.
func (c *Comp) Read(vAddr uint64, length uint64) ([]byte, error) {
	data := make([]byte, 0, length)

	for length > 0 {
		n := min(length, pageSize-vAddr%pageSize)

		pAddr, err := c.Translate(vAddr, AccessRead)
		if err != nil {
			return nil, err
		}

		chunk, err := c.storage.Read(pAddr, n)
		if err != nil {
			return nil, err
		}

		data = append(data, chunk...)
		vAddr += n
		length -= n
	}

	return data, nil
}

// Write writes data starting at a virtual address. The range may cross page
// boundaries. Pages before a faulting page keep what was written to them.
func (c *Comp) Write(vAddr uint64, data []byte) error {
	for len(data) > 0 {
		n := min(uint64(len(data)), pageSize-vAddr%pageSize)

		pAddr, err := c.Translate(vAddr, AccessWrite)
		if err != nil {
			return err
		}

		err = c.storage.Write(pAddr, data[:n])
		if err != nil {
			return err
		}

		vAddr += n
		data = data[n:]
	}

	return nil
}
