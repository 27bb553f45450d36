// Package production tracks manufacturing batches through the workshop
// stages, from plaque cutting to ready-for-delivery.
package production

import "time"

// Stage is a workshop step. Stages are strictly ordered; a batch moves
// forward only, though it may skip stages its product does not need
// (an unprinted box goes straight from GLUING to FINISHING).
type Stage string

const (
	StageCutting      Stage = "CUTTING"
	StageGluing       Stage = "GLUING"
	StagePrinting     Stage = "PRINTING"
	StageFinishing    Stage = "FINISHING"
	StageQualityCheck Stage = "QUALITY_CHECK"
	StageReady        Stage = "READY"
)

// Stages lists all stages in workshop order.
var Stages = []Stage{StageCutting, StageGluing, StagePrinting, StageFinishing, StageQualityCheck, StageReady}

var stageRank = map[Stage]int{
	StageCutting:      0,
	StageGluing:       1,
	StagePrinting:     2,
	StageFinishing:    3,
	StageQualityCheck: 4,
	StageReady:        5,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// Rank returns the stage's position in the workshop order, -1 for unknown
// stages.
func (s Stage) Rank() int {
	rank, ok := stageRank[s]
	if !ok {
		return -1
	}
	return rank
}

// CanAdvance reports whether a batch at from may move to to. Any forward
// move is allowed, including jumps; staying put or moving backward is not.
func CanAdvance(from, to Stage) bool {
	fromRank, ok := stageRank[from]
	if !ok {
		return false
	}
	toRank, ok := stageRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Batch is a production run for one client order position.
type Batch struct {
	ID               int64
	ClientOrderID    int64
	BatchCode        string
	Stage            Stage
	PlannedQuantity  int
	QuantityProduced int
	Notes            string
	StartedAt        time.Time
	StageUpdatedAt   time.Time
	CompletedAt      *time.Time
}

// Done reports whether the batch reached READY.
func (b Batch) Done() bool {
	return b.Stage == StageReady
}

// StageEvent is one entry in a batch's stage history.
type StageEvent struct {
	ID        int64
	BatchID   int64
	FromStage Stage
	ToStage   Stage
	Quantity  int
	Note      string
	MovedAt   time.Time
}
