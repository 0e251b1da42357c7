// Package memory provides the physical memory of the simulated machine.
package memory

import (
	"encoding/binary"
	"errors"
)

// ErrAddressOutOfRange is returned when an access touches a physical address
// at or beyond the storage capacity.
var ErrAddressOutOfRange = errors.New(
	"accessing physical address beyond the storage capacity")

// A Storage keeps the content of the physical memory of the machine.
//
// The storage manages the memory in units of one frame. A unit is only
// allocated when it is written for the first time; units that have never been
// written read as zero. Every Read and Write is carried out immediately and in
// order, so the storage can back memory-mapped buffers such as the text-mode
// screen.
type Storage struct {
	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity in bytes.
func NewStorage(capacity uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = 4096
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of addressable bytes.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// TouchedUnits returns the number of units that have been written.
func (s *Storage) TouchedUnits() int {
	return len(s.data)
}

func (s *Storage) checkRange(address, length uint64) error {
	if address >= s.capacity || length > s.capacity-address {
		return ErrAddressOutOfRange
	}

	return nil
}

func (s *Storage) getOrCreateUnit(baseAddr uint64) []byte {
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

// Read returns a copy of length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	if err := s.checkRange(address, length); err != nil {
		return nil, err
	}

	res := make([]byte, length)
	dataOffset := uint64(0)
	currAddr := address

	for dataOffset < length {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToRead := min(length-dataOffset, s.unitSize-inUnitAddr)

		if unit, ok := s.data[baseAddr]; ok {
			copy(res[dataOffset:dataOffset+lenToRead],
				unit[inUnitAddr:inUnitAddr+lenToRead])
		}

		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return res, nil
}

// Write stores data starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	if err := s.checkRange(address, uint64(len(data))); err != nil {
		return err
	}

	dataOffset := uint64(0)
	currAddr := address

	for dataOffset < uint64(len(data)) {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToWrite := min(uint64(len(data))-dataOffset, s.unitSize-inUnitAddr)

		unit := s.getOrCreateUnit(baseAddr)
		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])

		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}

// ReadUint64 reads a little-endian 64-bit word.
func (s *Storage) ReadUint64(address uint64) (uint64, error) {
	buf, err := s.Read(address, 8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(buf), nil
}

// WriteUint64 stores a little-endian 64-bit word.
func (s *Storage) WriteUint64(address uint64, value uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)

	return s.Write(address, buf)
}

// Zero clears length bytes starting at address. Units that are entirely
// covered are released.
func (s *Storage) Zero(address uint64, length uint64) error {
	if err := s.checkRange(address, length); err != nil {
		return err
	}

	end := address + length
	for currAddr := address; currAddr < end; {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenToClear := min(end-currAddr, s.unitSize-inUnitAddr)

		if lenToClear == s.unitSize {
			delete(s.data, baseAddr)
		} else if unit, ok := s.data[baseAddr]; ok {
			clear(unit[inUnitAddr : inUnitAddr+lenToClear])
		}

		currAddr += lenToClear
	}

	return nil
}
