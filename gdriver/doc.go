// Package gdriver and its subpackages connect the mempool to a consensus engine.
//
// Consensus only orders batch digests.
// Package gdigestbuf holds the digests the local mempool has committed
// until consensus proposes them,
// package gbatchpool retrieves the batch behind a digest proposed by anyone,
// and package gsmr exposes both, along with the committee and the signing key,
// as the context a state machine replication engine drives.
package gdriver
