// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package testutil

import (
	"errors"
)

// ScriptedTransport plays back a fixed sequence of response packets and
// records the command packets it receives, for testing the command
// execution path without a device.
type ScriptedTransport struct {
	// Commands holds the raw command packets written so far.
	Commands [][]byte

	responses [][]byte
	pending   []byte
	closed    bool
}

// NewScriptedTransport returns a transport that will answer successive
// commands with the supplied response packets in order.
func NewScriptedTransport(responses ...[]byte) *ScriptedTransport {
	return &ScriptedTransport{responses: responses}
}

// QueueResponse appends another response packet to the playback sequence.
func (t *ScriptedTransport) QueueResponse(response []byte) {
	t.responses = append(t.responses, response)
}

func (t *ScriptedTransport) Write(data []byte) (int, error) {
	if t.closed {
		return 0, errors.New("transport is closed")
	}
	if len(t.responses) == 0 {
		return 0, errors.New("unexpected command: no scripted response left")
	}
	command := make([]byte, len(data))
	copy(command, data)
	t.Commands = append(t.Commands, command)
	t.pending = t.responses[0]
	t.responses = t.responses[1:]
	return len(data), nil
}

func (t *ScriptedTransport) Read(data []byte) (int, error) {
	if t.closed {
		return 0, errors.New("transport is closed")
	}
	if t.pending == nil {
		return 0, errors.New("no response pending")
	}
	n := copy(data, t.pending)
	t.pending = nil
	return n, nil
}

func (t *ScriptedTransport) Close() error {
	t.closed = true
	return nil
}
