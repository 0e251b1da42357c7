package bootinfo

import (
	"fmt"
	"strings"
)

// SectionFlags are the ELF section header flags the kernel cares about.
type SectionFlags uint64

// ELF section header flags.
const (
	SectionWrite     SectionFlags = 0x1
	SectionAlloc     SectionFlags = 0x2
	SectionExecInstr SectionFlags = 0x4
)

var sectionFlagLetters = []struct {
	letter byte
	flag   SectionFlags
}{
	{'W', SectionWrite},
	{'A', SectionAlloc},
	{'X', SectionExecInstr},
}

// String renders the flags the way readelf does, for example "WA" or "AX".
func (f SectionFlags) String() string {
	var sb strings.Builder

	for _, l := range sectionFlagLetters {
		if f&l.flag != 0 {
			sb.WriteByte(l.letter)
		}
	}

	return sb.String()
}

// MarshalText encodes the flags as readelf letters.
func (f SectionFlags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses readelf letters such as "WA".
func (f *SectionFlags) UnmarshalText(text []byte) error {
	var flags SectionFlags

outer:
	for _, c := range []byte(strings.ToUpper(string(text))) {
		for _, l := range sectionFlagLetters {
			if c == l.letter {
				flags |= l.flag
				continue outer
			}
		}

		return fmt.Errorf("unknown section flag %q", c)
	}

	*f = flags

	return nil
}

// An ElfSection is one section header of the loaded kernel image.
type ElfSection struct {
	Name  string       `toml:"name" yaml:"name"`
	Addr  uint64       `toml:"addr" yaml:"addr"`
	Size  uint64       `toml:"size" yaml:"size"`
	Flags SectionFlags `toml:"flags" yaml:"flags"`
}

// StartAddress returns the first address of the section.
func (s ElfSection) StartAddress() uint64 {
	return s.Addr
}

// EndAddress returns the first address after the section.
func (s ElfSection) EndAddress() uint64 {
	return s.Addr + s.Size
}

// IsAllocated tells if the section occupies memory at run time.
func (s ElfSection) IsAllocated() bool {
	return s.Flags&SectionAlloc != 0
}

// IsWritable tells if the section holds writable data.
func (s ElfSection) IsWritable() bool {
	return s.Flags&SectionWrite != 0
}

// IsExecutable tells if the section holds instructions.
func (s ElfSection) IsExecutable() bool {
	return s.Flags&SectionExecInstr != 0
}

func (s ElfSection) String() string {
	return fmt.Sprintf("%s [%#x, %#x) %s",
		s.Name, s.StartAddress(), s.EndAddress(), s.Flags)
}
