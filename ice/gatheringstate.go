package ice

import "fmt"

// GatheringState describes the state of the candidate gathering process.
type GatheringState int

// GatheringState enum.
const (
	GatheringStateNew GatheringState = iota + 1
	GatheringStateGathering
	GatheringStateComplete
)

func (s GatheringState) String() string {
	switch s {
	case GatheringStateNew:
		return "new"
	case GatheringStateGathering:
		return "gathering"
	case GatheringStateComplete:
		return "complete"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}
