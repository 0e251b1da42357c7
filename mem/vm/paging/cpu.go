package paging

// CPU gives access to the paging registers of the processor.
type CPU interface {
	// ReadCR3 returns the physical address of the active level 4 table.
	ReadCR3() uint64

	// WriteCR3 switches to the level 4 table at the physical address.
	WriteCR3(value uint64)

	// FlushTLBEntry drops the cached translation of one virtual address.
	FlushTLBEntry(vAddr uint64)

	// FlushTLB drops all cached translations.
	FlushTLB()
}

// Memory reads and writes 64-bit words at virtual addresses. Every call must
// reach memory; tables are never cached on the way.
type Memory interface {
	ReadUint64(vAddr uint64) (uint64, error)
	WriteUint64(vAddr uint64, value uint64) error
}
