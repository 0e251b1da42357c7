package tlb

import (
	"sort"
)

// An Entry is a cached translation of one 4 KiB page.
type Entry struct {
	VPN      uint64
	PFN      uint64
	Writable bool
	Global   bool
}

type block struct {
	entry     Entry
	wayID     int
	valid     bool
	lastVisit uint64
}

// A set is a fully associative group of ways with LRU replacement.
type set struct {
	blocks      []*block
	vpnWayIDMap map[uint64]int
	visitList   []*block
	visitCount  uint64
}

func newSet(numWays int) *set {
	s := &set{}
	s.blocks = make([]*block, numWays)
	s.visitList = make([]*block, 0, numWays)
	s.vpnWayIDMap = make(map[uint64]int)

	for i := range s.blocks {
		b := &block{}
		s.blocks[i] = b
		b.wayID = i
		s.visit(i)
	}

	return s
}

func (s *set) lookup(vpn uint64) (wayID int, entry Entry, found bool) {
	wayID, ok := s.vpnWayIDMap[vpn]
	if !ok {
		return 0, Entry{}, false
	}

	return wayID, s.blocks[wayID].entry, true
}

func (s *set) update(wayID int, entry Entry) {
	b := s.blocks[wayID]
	if b.valid {
		delete(s.vpnWayIDMap, b.entry.VPN)
	}

	b.entry = entry
	b.valid = true
	s.vpnWayIDMap[entry.VPN] = wayID
}

func (s *set) invalidate(wayID int) {
	b := s.blocks[wayID]
	if !b.valid {
		return
	}

	delete(s.vpnWayIDMap, b.entry.VPN)
	b.valid = false
	b.entry = Entry{}

	// Invalid ways are the first to be reused.
	s.removeFromVisitList(wayID)
	b.lastVisit = 0
	s.visitList = append([]*block{b}, s.visitList...)
}

// victim returns the least recently visited way.
func (s *set) victim() int {
	return s.visitList[0].wayID
}

func (s *set) visit(wayID int) {
	b := s.blocks[wayID]

	s.removeFromVisitList(wayID)

	s.visitCount++
	b.lastVisit = s.visitCount

	index := sort.Search(len(s.visitList), func(i int) bool {
		return s.visitList[i].lastVisit > b.lastVisit
	})

	s.visitList = append(s.visitList, nil)
	copy(s.visitList[index+1:], s.visitList[index:])
	s.visitList[index] = b
}

func (s *set) removeFromVisitList(wayID int) {
	for i, b := range s.visitList {
		if b.wayID == wayID {
			s.visitList = append(s.visitList[:i], s.visitList[i+1:]...)
			return
		}
	}
}
