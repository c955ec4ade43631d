// Package pipeline coordinates stage workers over the persistent store: the
// Coordinator computes eligibility against the stage dependency graph and
// records results and completions; the Waiter lets idle workers block with a
// bounded wait; the Worker runs one stage's claim-process-persist loop.
//
// Eligibility reads are not reservations. Two concurrent workers for the same
// stage can observe and process the same item; deployments run at most one
// worker per stage (see StageLock), and completion marking is idempotent so a
// duplicate pass wastes work without corrupting state.
package pipeline
