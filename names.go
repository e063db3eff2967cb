package sharedevent

import (
	"fmt"
	"strings"
)

// namePrefix derives a stable prefix for a channel name, per §4.1: '/' and
// '\' are folded to '_' so two names differing only in path separators
// produce identical derived object names; every other character passes
// through unchanged.
func namePrefix(channelName string) string {
	sanitized := strings.NewReplacer("/", "_", "\\", "_").Replace(channelName)
	return "SHAREDEVENT_" + sanitized
}

// registrationLockName is the Global\Mutex-equivalent name for the
// Registration Lock (§6).
func registrationLockName(prefix string) string {
	return prefix + "_RL"
}

// rosterSegmentName is the Roster Segment name (§6).
func rosterSegmentName(prefix string) string {
	return prefix + "_RM"
}

// payloadSegmentName is the Payload Segment name (§6).
func payloadSegmentName(prefix string) string {
	return prefix + "_EM"
}

// publishSignalName is the per-slot auto-reset wait object name (§6).
func publishSignalName(prefix string, slotID int) string {
	return fmt.Sprintf("%s_%d", prefix, slotID)
}

// readCompleteSignalName is the per-slot manual-reset wait object name (§6).
func readCompleteSignalName(prefix string, slotID int) string {
	return fmt.Sprintf("%s_READ_%d", prefix, slotID)
}

// slotMetaSegmentName is a supplemented, non-wire-compatible sidecar
// segment (§3 "Supplemented Features" in SPEC_FULL.md) carrying diagnostic
// per-slot owner PIDs. It deliberately sits outside the §6 object name
// table because it is not required for protocol compatibility with other
// SharedEvent implementations, only for this implementation's own
// eviction diagnostics.
func slotMetaSegmentName(prefix string) string {
	return prefix + "_PIDS"
}
