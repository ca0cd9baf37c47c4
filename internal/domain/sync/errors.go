package sync

import "fmt"

// KickoffError means the vendor refused or mishandled the export kickoff.
// No job record exists when this is returned; the kickoff either fully
// succeeds with a pollable job or leaves nothing behind.
type KickoffError struct {
	Err error
}

func (e *KickoffError) Error() string {
	return fmt.Sprintf("export kickoff failed: %v", e.Err)
}

func (e *KickoffError) Unwrap() error { return e.Err }

// PollTransportError describes the poll response that drove a job to
// FAILED. It is recorded on the job rather than returned; callers observe
// the failure through job status.
type PollTransportError struct {
	HTTPStatus int
}

func (e *PollTransportError) Error() string {
	return fmt.Sprintf("status poll returned HTTP %d", e.HTTPStatus)
}
