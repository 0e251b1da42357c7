package mmu

import "fmt"

// Access is the kind of memory access being translated.
type Access int

// Kinds of accesses.
const (
	AccessRead Access = iota
	AccessWrite
)

func (a Access) String() string {
	if a == AccessWrite {
		return "write"
	}

	return "read"
}

// FaultReason tells why a translation failed.
type FaultReason int

// Reasons of page faults.
const (
	FaultNonCanonical FaultReason = iota
	FaultNotPresent
	FaultWriteProtected
	FaultOutOfMemory
)

func (r FaultReason) String() string {
	switch r {
	case FaultNonCanonical:
		return "non-canonical address"
	case FaultNotPresent:
		return "page not present"
	case FaultWriteProtected:
		return "write to read-only page"
	case FaultOutOfMemory:
		return "physical address beyond memory"
	default:
		return fmt.Sprintf("FaultReason(%d)", int(r))
	}
}

// A PageFault is raised when the MMU cannot translate an address.
type PageFault struct {
	VAddr  uint64
	Access Access
	Reason FaultReason

	// Level is the table level where the walk stopped, 0 when the fault was
	// found without walking.
	Level int
}

func (f *PageFault) Error() string {
	if f.Level == 0 {
		return fmt.Sprintf("page fault: %s at %#x: %s",
			f.Access, f.VAddr, f.Reason)
	}

	return fmt.Sprintf("page fault: %s at %#x: %s (P%d)",
		f.Access, f.VAddr, f.Reason, f.Level)
}
