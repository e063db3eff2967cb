package sharedevent

import (
	"context"
	"encoding/binary"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// currentPID returns this process's PID for the diagnostic sidecar
// recorded by participant.go. Not used for the core dead-peer heuristic
// (§9), which relies solely on the wait object's absence.
func currentPID() int {
	return os.Getpid()
}

// SlotLiveness is a supplemented, diagnostic-only report (§3 "Supplemented
// Features") describing what the PID sidecar believes about a slot,
// independent of the wait-object-absence heuristic that actually drives
// eviction during Emit.
type SlotLiveness struct {
	SlotID       int
	RecordedPID  int32
	ProcessAlive bool
}

// DiagnoseLiveness cross-checks every occupied roster slot's recorded PID
// against the OS process table via gopsutil, for operators who want a
// second opinion on top of the wait-object-absence eviction that Emit
// already performs. It never mutates the roster or evicts anything itself.
func (c *Channel[T]) DiagnoseLiveness(ctx context.Context) ([]SlotLiveness, error) {
	ids, err := readRoster(c.roster, c.cfg.MaxListeners)
	if err != nil {
		return nil, err
	}
	raw, err := c.slotMeta.ReadAt()
	if err != nil {
		return nil, err
	}

	reports := make([]SlotLiveness, 0, len(ids))
	for _, id := range ids {
		offset := id * 4
		var pid int32
		if offset+4 <= len(raw) {
			pid = int32(binary.LittleEndian.Uint32(raw[offset : offset+4]))
		}
		alive := false
		if pid > 0 {
			alive, _ = process.PidExistsWithContext(ctx, pid)
		}
		reports = append(reports, SlotLiveness{SlotID: id, RecordedPID: pid, ProcessAlive: alive})
	}
	return reports, nil
}
