// Package tlb provides a translation lookaside buffer model for the
// simulated MMU.
package tlb

import "log"

// Stats counts TLB activity.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Invalidated uint64
}

// A TLB caches page translations. Entries stay cached until they are evicted,
// invalidated, or flushed, so a TLB can serve a translation that no longer
// matches the page tables.
type TLB struct {
	set   *set
	stats Stats
}

// New creates a TLB with the given number of ways.
func New(numWays int) *TLB {
	if numWays <= 0 {
		log.Panicf("tlb needs at least one way, got %d", numWays)
	}

	return &TLB{set: newSet(numWays)}
}

// Lookup returns the cached translation of the virtual page number.
func (t *TLB) Lookup(vpn uint64) (Entry, bool) {
	wayID, entry, found := t.set.lookup(vpn)
	if !found {
		t.stats.Misses++
		return Entry{}, false
	}

	t.stats.Hits++
	t.set.visit(wayID)

	return entry, true
}

// Insert caches a translation, replacing the least recently used one when
// the TLB is full.
func (t *TLB) Insert(entry Entry) {
	wayID, _, found := t.set.lookup(entry.VPN)
	if !found {
		wayID = t.set.victim()
		if t.set.blocks[wayID].valid {
			t.stats.Evictions++
		}
	}

	t.set.update(wayID, entry)
	t.set.visit(wayID)
}

// Invalidate drops the translation of one virtual page number. It reports
// whether an entry was dropped.
func (t *TLB) Invalidate(vpn uint64) bool {
	wayID, _, found := t.set.lookup(vpn)
	if !found {
		return false
	}

	t.set.invalidate(wayID)
	t.stats.Invalidated++

	return true
}

// Flush drops every translation. Global translations survive when keepGlobal
// is set. It returns the number of dropped entries.
func (t *TLB) Flush(keepGlobal bool) int {
	n := 0

	for _, b := range t.set.blocks {
		if !b.valid {
			continue
		}

		if keepGlobal && b.entry.Global {
			continue
		}

		t.set.invalidate(b.wayID)
		n++
	}

	t.stats.Invalidated += uint64(n)

	return n
}

// Len returns the number of cached translations.
func (t *TLB) Len() int {
	return len(t.set.vpnWayIDMap)
}

// Entries returns the cached translations, most recently used last.
func (t *TLB) Entries() []Entry {
	entries := make([]Entry, 0, t.Len())

	for _, b := range t.set.visitList {
		if b.valid {
			entries = append(entries, b.entry)
		}
	}

	return entries
}

// Stats returns the activity counters.
func (t *TLB) Stats() Stats {
	return t.stats
}
