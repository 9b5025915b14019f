package core

import "fmt"

// StageID identifies one of the three processing stages, in pipeline order
type StageID int

const (
	StageSharpening StageID = iota
	StageUnsharpMask
	StageToneCurve

	NumStages = 3
)

// StageNone is used where no stage applies, e.g. by an idle scheduler
const StageNone StageID = -1

// Stages lists all stages in execution order
var Stages = [NumStages]StageID{StageSharpening, StageUnsharpMask, StageToneCurve}

func (s StageID) String() string {
	switch s {
	case StageSharpening:
		return "sharpening"
	case StageUnsharpMask:
		return "unsharp_masking"
	case StageToneCurve:
		return "tone_curve"
	case StageNone:
		return "none"
	default:
		return fmt.Sprintf("StageID(%d)", int(s))
	}
}

// Valid reports whether s names a real stage
func (s StageID) Valid() bool {
	return s >= StageSharpening && s <= StageToneCurve
}

// Next returns the following stage and false after the last one
func (s StageID) Next() (StageID, bool) {
	if s >= StageToneCurve {
		return StageNone, false
	}
	return s + 1, true
}
