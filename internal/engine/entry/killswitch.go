package entry

import (
	"os"
)

// KillSwitch halts all new entries while a well-known marker file exists.
// Removing the file resumes normal operation; no restart is needed. Checked
// at the top of every entry evaluation cycle, before any network call.
type KillSwitch struct {
	markerPath string
}

// NewKillSwitch creates a kill switch watching the given marker path. An
// empty path yields a switch that is never engaged.
func NewKillSwitch(markerPath string) *KillSwitch {
	return &KillSwitch{markerPath: markerPath}
}

// Engaged reports whether the marker is present. Stat errors other than
// not-exist are treated as engaged: if we cannot tell, we do not trade.
func (k *KillSwitch) Engaged() bool {
	if k.markerPath == "" {
		return false
	}
	_, err := os.Stat(k.markerPath)
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}
