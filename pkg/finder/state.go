package finder

// State is the path a single request took through the cache tiers.
//
// Range queries start at StateCacheHit or StateStoreFetch depending on the
// cache lookup, and fall to StateDegraded when the store fails. Area queries
// start at StateSnapshotReady or StateColdRebuildNeeded, and fall to
// StateDegraded when a cold rebuild fails but an expired snapshot exists.
type State int

const (
	StateCacheHit State = iota
	StateStoreFetch
	StateSnapshotReady
	StateColdRebuildNeeded
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateCacheHit:
		return "cache_hit"
	case StateStoreFetch:
		return "store_fetch"
	case StateSnapshotReady:
		return "snapshot_ready"
	case StateColdRebuildNeeded:
		return "cold_rebuild"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Query modes, used as metric and tracker labels.
const (
	ModeArea     = "area"
	ModeRange    = "range"
	ModeAll      = "all"
	ModeClusters = "clusters"
)
