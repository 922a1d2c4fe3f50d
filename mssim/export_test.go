// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package mssim

import "net"

// NewTransportForTesting wires a Transport to existing connections so tests
// can drive it over in-memory pipes.
func NewTransportForTesting(tpm, platform net.Conn) *Transport {
	return &Transport{tpm: tpm, platform: platform, locality: 0}
}
