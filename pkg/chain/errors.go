package chain

import "errors"

// ErrRejectedByOperator indicates the operator declined to authorize the
// operation in their wallet. Not an engine failure: the workflow resets to
// idle without an error banner.
var ErrRejectedByOperator = errors.New("operation rejected by operator")

// SubmissionError wraps a network or RPC failure that happened before any
// operation existed on-chain.
type SubmissionError struct {
	Op  OperationType
	Err error
}

func (e *SubmissionError) Error() string {
	return "submission of " + string(e.Op) + " failed: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func IsSubmissionError(err error) bool {
	var submissionErr *SubmissionError

	return errors.As(err, &submissionErr)
}
