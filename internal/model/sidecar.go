package model

import (
	"encoding/json"
	"os"
	"time"

	"github.com/throttlehq/throttle/internal/errors"
)

// SidecarMetadata is written next to an in-progress destination as
// "<dest>.meta" before any bytes flow, enabling another process (the
// filesystem monitor) to correlate a partially-written file back to the
// download that produced it (spec.md §3, "takeover").
type SidecarMetadata struct {
	URL       string    `json:"url"`
	Dest      string    `json:"dest"`
	CreatedAt time.Time `json:"created_at"`
	OriginPID int       `json:"origin_pid"`
	Protocol  string    `json:"protocol"`
}

func sidecarPath(dest string) string {
	return dest + ".meta"
}

// WriteSidecar creates "<dest>.meta". Per spec.md §4.3 step 1 and §5's
// ordering guarantee, this must happen before any bytes are written.
func WriteSidecar(m SidecarMetadata) error {
	buf, err := json.Marshal(m)
	if err != nil {
		return errors.Classify(errors.KindInvalidInput, err)
	}
	if err := os.WriteFile(sidecarPath(m.Dest), buf, 0o644); err != nil {
		return errors.Classify(errors.KindDisk, err)
	}
	return nil
}

// ReadSidecar loads "<dest>.meta" if it exists, for filesystem-monitor
// takeover correlation (spec.md §4.6).
func ReadSidecar(dest string) (SidecarMetadata, bool) {
	buf, err := os.ReadFile(sidecarPath(dest))
	if err != nil {
		return SidecarMetadata{}, false
	}
	var m SidecarMetadata
	if err := json.Unmarshal(buf, &m); err != nil {
		return SidecarMetadata{}, false
	}
	return m, true
}

// RemoveSidecar deletes "<dest>.meta". It is idempotent: a missing file is
// not an error, matching spec.md §8's "idempotent cleanup" property.
func RemoveSidecar(dest string) error {
	err := os.Remove(sidecarPath(dest))
	if err != nil && !os.IsNotExist(err) {
		return errors.Classify(errors.KindDisk, err)
	}
	return nil
}

// TransientPaths returns the set of files that must not survive past a
// terminal state for dest (spec.md §4.3 step 7b, §8 "idempotent cleanup").
func TransientPaths(dest string) []string {
	return []string{dest + ".part", dest + ".tmp", sidecarPath(dest)}
}

// CleanupTransient removes every transient path for dest. Safe to call
// multiple times.
func CleanupTransient(dest string) error {
	for _, p := range TransientPaths(dest) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Classify(errors.KindDisk, err)
		}
	}
	return nil
}
