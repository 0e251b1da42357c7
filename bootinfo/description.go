package bootinfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/kmem/mem/pmm"
)

// A Range is a half-open range of physical addresses.
type Range struct {
	Start uint64 `toml:"start" yaml:"start"`
	End   uint64 `toml:"end" yaml:"end"`
}

// BootstrapTables tells where the boot code placed the page tables that are
// active when the kernel starts.
type BootstrapTables struct {
	P4 uint64 `toml:"p4" yaml:"p4"`
	P3 uint64 `toml:"p3" yaml:"p3"`
	P2 uint64 `toml:"p2" yaml:"p2"`
}

// A Description is everything needed to build a machine and boot a kernel on
// it. It serves as the boot information of that kernel.
type Description struct {
	Name       string          `toml:"name" yaml:"name"`
	MemorySize uint64          `toml:"memory_size" yaml:"memory_size"`
	TLBSize    int             `toml:"tlb_size" yaml:"tlb_size"`
	Areas      []pmm.Area      `toml:"areas" yaml:"areas"`
	Sections   []ElfSection    `toml:"sections" yaml:"sections"`
	BootInfo   Range           `toml:"boot_info" yaml:"boot_info"`
	Bootstrap  BootstrapTables `toml:"bootstrap" yaml:"bootstrap"`
}

// DefaultDescription returns a small PC with 32 MiB of memory. The kernel is
// loaded at 1 MiB and its bootstrap tables live in its .bss section.
func DefaultDescription() Description {
	return Description{
		Name:       "pc",
		MemorySize: 0x200_0000,
		TLBSize:    64,
		Areas: []pmm.Area{
			{Base: 0, Length: 0x9_fc00},
			{Base: 0x10_0000, Length: 0x1f0_0000},
		},
		Sections: []ElfSection{
			{Name: ".text", Addr: 0x10_0000, Size: 0x3000,
				Flags: SectionAlloc | SectionExecInstr},
			{Name: ".rodata", Addr: 0x10_3000, Size: 0x1000,
				Flags: SectionAlloc},
			{Name: ".data", Addr: 0x10_4000, Size: 0x1000,
				Flags: SectionAlloc | SectionWrite},
			{Name: ".bss", Addr: 0x10_5000, Size: 0x3000,
				Flags: SectionAlloc | SectionWrite},
			{Name: ".comment", Addr: 0, Size: 0x2d},
		},
		BootInfo: Range{Start: 0x10_9000, End: 0x10_9100},
		Bootstrap: BootstrapTables{
			P4: 0x10_5000,
			P3: 0x10_6000,
			P2: 0x10_7000,
		},
	}
}

// LoadDescription reads a description from a .toml, .yaml or .yml file.
func LoadDescription(path string) (Description, error) {
	var d Description

	switch ext := filepath.Ext(path); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, &d); err != nil {
			return d, fmt.Errorf("decoding %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return d, err
		}

		if err := yaml.Unmarshal(data, &d); err != nil {
			return d, fmt.Errorf("decoding %s: %w", path, err)
		}
	default:
		return d, fmt.Errorf("unknown machine description format %q", ext)
	}

	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("%s: %w", path, err)
	}

	return d, nil
}

// Validate checks that a machine can be built from the description. A
// missing memory map or section list is not an error here; the kernel reports
// it when it boots.
func (d Description) Validate() error {
	var errs []error

	if d.MemorySize == 0 {
		errs = append(errs, errors.New("memory size must be positive"))
	}

	if d.TLBSize <= 0 {
		errs = append(errs, errors.New("tlb size must be positive"))
	}

	for _, a := range d.Areas {
		if a.End() > d.MemorySize || a.End() < a.Base {
			errs = append(errs, fmt.Errorf("area %s is outside memory", a))
		}
	}

	if d.BootInfo.End < d.BootInfo.Start {
		errs = append(errs, errors.New("boot info ends before it starts"))
	}

	tables := []struct {
		name string
		addr uint64
	}{
		{"p4", d.Bootstrap.P4},
		{"p3", d.Bootstrap.P3},
		{"p2", d.Bootstrap.P2},
	}
	for _, t := range tables {
		if t.addr%pmm.PageSize != 0 || t.addr+pmm.PageSize > d.MemorySize {
			errs = append(errs, fmt.Errorf(
				"bootstrap %s table at %#x is not a frame in memory",
				t.name, t.addr))
		}
	}

	return errors.Join(errs...)
}

// MemoryAreas returns the memory map.
func (d Description) MemoryAreas() ([]pmm.Area, error) {
	if len(d.Areas) == 0 {
		return nil, ErrNoMemoryMap
	}

	return d.Areas, nil
}

// ElfSections returns the kernel sections.
func (d Description) ElfSections() ([]ElfSection, error) {
	if len(d.Sections) == 0 {
		return nil, ErrNoElfSections
	}

	return d.Sections, nil
}

// StartAddress returns the start of the boot information.
func (d Description) StartAddress() uint64 {
	return d.BootInfo.Start
}

// EndAddress returns the end of the boot information.
func (d Description) EndAddress() uint64 {
	return d.BootInfo.End
}
