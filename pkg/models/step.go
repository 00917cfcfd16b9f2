package models

// Step identifies which half of a workflow an operation belongs to. The
// permission step grants a spender the right to move a bounded amount; the
// action step is the operation the workflow exists to perform.
type Step string

const (
	StepPermission Step = "permission"
	StepAction     Step = "action"
)
