// Package gbatchpool retrieves the batches behind proposed digests.
//
// The consensus engine only orders digests.
// Before a validator can vote on, or execute, a proposal,
// it needs the batch that the digest refers to;
// the batch normally arrives through the mempool's peer batch path,
// but it may arrive after the proposal.
// A [Pool] tracks the digests needed in the current height and round,
// and retrieves them on background workers.
package gbatchpool
