// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package udp

import (
	"fmt"

	"github.com/joeycumines/go-uvio/buffer"
)

// udpOptions holds configuration options for UDP creation.
type udpOptions struct {
	recvBufferSize int
}

// Option configures a UDP handle.
type Option interface {
	applyUDP(*udpOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyUDPFunc func(*udpOptions) error
}

func (o *optionImpl) applyUDP(opts *udpOptions) error {
	return o.applyUDPFunc(opts)
}

// WithRecvBufferSize sets the scratch size used per received datagram,
// capped at (and defaulting to) buffer.DatagramCeiling. Datagrams larger
// than the scratch are delivered truncated, flagged Partial.
func WithRecvBufferSize(n int) Option {
	return &optionImpl{func(opts *udpOptions) error {
		if n < 1 {
			return fmt.Errorf("udp: invalid receive buffer size: %d", n)
		}
		opts.recvBufferSize = min(n, buffer.DatagramCeiling)
		return nil
	}}
}

// resolveOptions applies Option instances to udpOptions.
func resolveOptions(opts []Option) (*udpOptions, error) {
	cfg := &udpOptions{
		recvBufferSize: buffer.DatagramCeiling,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyUDP(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
