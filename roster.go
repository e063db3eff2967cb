package sharedevent

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// rosterSize returns the byte size of the Roster Segment for maxListeners,
// per §6: 4 bytes for the count plus 4 bytes per slot id.
func rosterSize(maxListeners int) int {
	return 4 + 4*maxListeners
}

// readRoster decodes the Roster Segment (§3): a little-endian uint32 count
// followed by that many little-endian int32 slot ids in ascending order.
func readRoster(region sharedRegion, maxListeners int) ([]int, error) {
	raw, err := region.ReadAt()
	if err != nil {
		return nil, fmt.Errorf("sharedevent: reading roster: %w", err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("sharedevent: roster segment truncated (%d bytes)", len(raw))
	}

	count := int(binary.LittleEndian.Uint32(raw[0:4]))
	if count < 0 || count > maxListeners {
		// A concurrent writer under a different MaxListeners, or plain
		// corruption. §3 says a MaxListeners mismatch is undefined and we
		// need not defend against it; clamp defensively rather than panic.
		if count > maxListeners {
			count = maxListeners
		} else {
			count = 0
		}
	}

	ids := make([]int, 0, count)
	for i := 0; i < count; i++ {
		offset := 4 + i*4
		if offset+4 > len(raw) {
			break
		}
		ids = append(ids, int(int32(binary.LittleEndian.Uint32(raw[offset:offset+4]))))
	}
	return ids, nil
}

// writeRoster encodes ids (which the caller must have kept sorted
// ascending) back into the Roster Segment.
func writeRoster(region sharedRegion, ids []int) error {
	buf := make([]byte, region.Size())
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(ids)))
	for i, id := range ids {
		offset := 4 + i*4
		if offset+4 > len(buf) {
			return fmt.Errorf("sharedevent: roster of %d ids exceeds segment capacity", len(ids))
		}
		binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(int32(id)))
	}
	return region.WriteAt(buf)
}

// allocateSlotID returns the smallest non-negative integer absent from the
// sorted, duplicate-free ids, per §4.5: the first index where ids[i] != i,
// or len(ids) if the prefix is perfectly dense.
func allocateSlotID(ids []int) int {
	for i, id := range ids {
		if id != i {
			return i
		}
	}
	return len(ids)
}

// insertSorted returns ids with slotID inserted, keeping ascending order,
// per §4.8 Join step 6.
func insertSorted(ids []int, slotID int) []int {
	out := make([]int, 0, len(ids)+1)
	inserted := false
	for _, id := range ids {
		if !inserted && slotID < id {
			out = append(out, slotID)
			inserted = true
		}
		out = append(out, id)
	}
	if !inserted {
		out = append(out, slotID)
	}
	return out
}

// removeID returns ids with slotID removed, if present.
func removeID(ids []int, slotID int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != slotID {
			out = append(out, id)
		}
	}
	return out
}

// removeIDs returns ids with every id in dead removed, preserving order.
// Used by Emit's step 6 ("write back a pruned roster").
func removeIDs(ids []int, dead map[int]bool) []int {
	if len(dead) == 0 {
		return ids
	}
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !dead[id] {
			out = append(out, id)
		}
	}
	return out
}

// assertSorted is a small internal-consistency guard used by tests to
// check the invariant in §8: "the roster is sorted ascending and contains
// no duplicates".
func assertSorted(ids []int) bool {
	return sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) && !hasDuplicates(ids)
}

func hasDuplicates(ids []int) bool {
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
