// Package gtlibp2p is a libp2p implementation of the gtransport interfaces.
//
// Each message is sent on its own stream using [ProtocolID].
// The sender writes a length-prefixed frame and half-closes the stream;
// the receiver passes the message to its [gtransport.Handler]
// and replies with a single status byte.
// An ack status resolves the sender's handle successfully.
//
// Addresses are libp2p multiaddrs that include the peer ID,
// such as "/ip4/127.0.0.1/tcp/9999/p2p/12D3KooW...".
package gtlibp2p

import (
	"fmt"

	"github.com/libp2p/go-libp2p"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	libp2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
)

// ProtocolID is the libp2p protocol used for every mempool message.
const ProtocolID libp2pprotocol.ID = "/gmempool/msg/v1"

// Host wraps a libp2p host.
type Host struct {
	h libp2phost.Host
}

// HostOptions holds libp2p configuration for the host.
type HostOptions struct {
	// Options are passed when creating the underlying libp2p host.
	Options []libp2p.Option
}

func NewHost(opts HostOptions) (*Host, error) {
	h, err := libp2p.New(opts.Options...)
	if err != nil {
		return nil, err
	}

	return &Host{h: h}, nil
}

// Libp2pHost returns the underlying libp2p host value.
func (h *Host) Libp2pHost() libp2phost.Host {
	return h.h
}

// Addrs returns the host's listen addresses with its peer ID appended,
// in the form other authorities use as this host's committee address.
func (h *Host) Addrs() []string {
	out := make([]string, 0, len(h.h.Addrs()))
	for _, a := range h.h.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, h.h.ID()))
	}
	return out
}

// Close closes the underlying libp2p host and returns its error.
func (h *Host) Close() error {
	return h.h.Close()
}
