package canon

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Profile tunes a Canon's memory and convergence behavior. The zero
// value is not meaningful; start from DefaultProfile or LoadProfile.
type Profile struct {
	// Weakness controls whether the trace pool and the known set hold
	// references weakly. Turning it off preserves identical logical
	// behavior and trades memory for platforms or workloads where
	// reclamation churn is unwelcome.
	Weakness bool `toml:"weakness"`

	// MaxRelabelRounds caps the per-component re-scan loop that settles
	// canonical assignments for symmetric components. Values below 1 are
	// treated as 1.
	MaxRelabelRounds int `toml:"max_relabel_rounds"`
}

// DefaultProfile returns the tuning used by New when no profile is
// given.
func DefaultProfile() Profile {
	return Profile{
		Weakness:         true,
		MaxRelabelRounds: 8,
	}
}

// LoadProfile reads a TOML profile from path. Missing keys keep their
// defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	meta, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Profile{}, fmt.Errorf("load profile %s: %w", path, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return Profile{}, fmt.Errorf("load profile %s: unknown key %s", path, undec[0])
	}
	return p, nil
}
