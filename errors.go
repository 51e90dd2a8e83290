package main

import "errors"

// Errors surfaced by the match engine. Handlers translate these to HTTP
// status codes; anything unrecognized becomes a 500 db_error.
var (
	errNotFound       = errors.New("not_found")
	errNotParticipant = errors.New("not_participant")
	errSelfProposal   = errors.New("self_proposal")

	// errConflict means the pair uniqueness index rejected an insert because
	// a concurrent request created the match first. The engine re-reads the
	// row and retries as a confirm; this error never reaches a handler.
	errConflict = errors.New("pair_conflict")
)
