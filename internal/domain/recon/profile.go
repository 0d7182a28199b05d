package recon

import "strings"

// Profile enum
type Profile string

const (
	ProfilePassive Profile = "passive"
	ProfileActive  Profile = "active"
	ProfileFull    Profile = "full"
)

var profileRank = map[Profile]int{
	ProfilePassive: 1,
	ProfileActive:  2,
	ProfileFull:    3,
}

// ParseProfile validates a profile name.
func ParseProfile(raw string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := profileRank[p]; !ok {
		return "", &ValidationError{Field: "profile", Reason: "must be one of: passive, active, full"}
	}
	return p, nil
}

// Includes reports whether a scan running under p also runs tools
// registered for the (less intense) profile other.
func (p Profile) Includes(other Profile) bool {
	return profileRank[p] >= profileRank[other]
}

// Stage enum. Stages run sequentially; tools inside a stage run concurrently.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StagePortScan  Stage = "portscan"
	StageWebProbe  Stage = "webprobe"
)

// StageOrder is the fixed execution order of stages.
func StageOrder() []Stage {
	return []Stage{StageDiscovery, StagePortScan, StageWebProbe}
}
