// Package gmempool is the transaction dissemination pipeline
// that feeds digests to a BFT consensus engine.
//
// Client transactions flow through three stages,
// each running in its own kernel goroutine
// and connected by channels of capacity [ChannelCapacity]:
//
//   - the [BatchMaker] accumulates transactions into batches,
//     sealing on size or delay, and broadcasts each batch
//     to every other committee member;
//   - the [QuorumWaiter] holds each batch until a stake-weighted quorum
//     has acknowledged it;
//   - the [Processor] persists each released batch under its digest
//     and forwards the digest to consensus.
//
// Inbound messages arrive through the [Receiver],
// which routes client transactions to the BatchMaker
// and persists batches broadcast by other validators.
//
// [New] wires the stages together for a single authority.
package gmempool
