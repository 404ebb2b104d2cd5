package application

import "time"

// ReleaseCadence classifies how frequently a repository publishes releases,
// based on the age of its most recent stored release. Repositories that
// release often are polled at the base interval; dormant ones back off.
type ReleaseCadence int

const (
	// CadenceHot indicates a release within the last 7 days. Polls at the base interval.
	CadenceHot ReleaseCadence = iota
	// CadenceActive indicates a release within the last 30 days. Polls at 2x the base interval.
	CadenceActive
	// CadenceWarm indicates a release within the last 90 days. Polls at 4x the base interval.
	CadenceWarm
	// CadenceDormant indicates no release for 90+ days (or none stored). Polls at 8x the base interval.
	CadenceDormant
)

// String returns a human-readable name for the cadence.
func (c ReleaseCadence) String() string {
	switch c {
	case CadenceHot:
		return "hot"
	case CadenceActive:
		return "active"
	case CadenceWarm:
		return "warm"
	case CadenceDormant:
		return "dormant"
	default:
		return "unknown"
	}
}

// classifyCadence determines the cadence from the most recent release time.
// A zero-value time (no releases stored yet) is treated as CadenceDormant.
func classifyCadence(lastRelease time.Time, now time.Time) ReleaseCadence {
	if lastRelease.IsZero() {
		return CadenceDormant
	}

	elapsed := now.Sub(lastRelease)

	switch {
	case elapsed < 7*24*time.Hour:
		return CadenceHot
	case elapsed < 30*24*time.Hour:
		return CadenceActive
	case elapsed < 90*24*time.Hour:
		return CadenceWarm
	default:
		return CadenceDormant
	}
}

// cadenceInterval returns the polling interval for the given cadence,
// scaled from the configured base interval.
func cadenceInterval(c ReleaseCadence, base time.Duration) time.Duration {
	switch c {
	case CadenceHot:
		return base
	case CadenceActive:
		return 2 * base
	case CadenceWarm:
		return 4 * base
	case CadenceDormant:
		return 8 * base
	default:
		return base
	}
}

// repoSchedule tracks per-repository adaptive polling state.
type repoSchedule struct {
	cadence    ReleaseCadence
	nextPollAt time.Time
	lastPolled time.Time
}

// ScheduleInfo is an exported view of a repo's adaptive polling schedule,
// used for observability and testing.
type ScheduleInfo struct {
	Cadence    ReleaseCadence
	NextPollAt time.Time
	LastPolled time.Time
}
