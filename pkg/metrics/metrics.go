package metrics

/*
Labels and so on for metrics used in Tugboat.
*/

const (
	LabelSuccess = "success"

	// Labels for registry client metrics
	LabelRequestKind = "kind"

	// Labels for deploy cycle metrics
	LabelOutcome = "outcome"
	LabelPhase   = "phase"
)
