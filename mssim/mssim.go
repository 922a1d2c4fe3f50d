// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

/*
Package mssim provides a transport for communicating with a TPM simulator
that implements the Microsoft TPM2 simulator interface.
*/
package mssim

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	cmdPowerOn        uint32 = 1
	cmdTPMSendCommand uint32 = 8
	cmdNVOn           uint32 = 11
	cmdReset          uint32 = 17
	cmdSessionEnd     uint32 = 20
	cmdStop           uint32 = 21

	// DefaultPort is the simulator's default command channel port. The
	// platform channel runs on the next port number.
	DefaultPort uint = 2321
)

// PlatformCommandError corresponds to an error code in response to a
// platform command executed on the simulator.
type PlatformCommandError struct {
	commandCode uint32
	Code        uint32
}

func (e *PlatformCommandError) Error() string {
	return fmt.Sprintf("received error code %d in response to platform command %d", e.Code, e.commandCode)
}

// Transport represents a connection to a TPM simulator. It is not intended
// to be used from multiple goroutines simultaneously.
type Transport struct {
	tpm      net.Conn
	platform net.Conn
	locality uint8

	r io.Reader
}

// Open connects to a simulator on the given host and port and powers it
// on. An empty host selects localhost; a zero port selects DefaultPort.
func Open(host string, port uint) (*Transport, error) {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = DefaultPort
	}

	tpm, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to TPM socket: %w", err)
	}
	platform, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port+1))
	if err != nil {
		tpm.Close()
		return nil, fmt.Errorf("cannot connect to platform socket: %w", err)
	}

	t := &Transport{tpm: tpm, platform: platform, locality: 0}
	if err := t.platformCommand(cmdPowerOn); err != nil {
		t.closeConnections()
		return nil, fmt.Errorf("cannot complete power on command: %w", err)
	}
	if err := t.platformCommand(cmdNVOn); err != nil {
		t.closeConnections()
		return nil, fmt.Errorf("cannot complete NV on command: %w", err)
	}
	return t, nil
}

// Write submits a complete command packet to the simulator, framed with
// the send-command platform code, the locality and the packet size.
func (t *Transport) Write(data []byte) (int, error) {
	if err := binary.Write(t.tpm, binary.BigEndian, cmdTPMSendCommand); err != nil {
		return 0, err
	}
	if err := binary.Write(t.tpm, binary.BigEndian, t.locality); err != nil {
		return 0, err
	}
	if err := binary.Write(t.tpm, binary.BigEndian, uint32(len(data))); err != nil {
		return 0, err
	}
	return t.tpm.Write(data)
}

// Read reads a response packet. The simulator frames each response with a
// size prefix and a trailing status word.
func (t *Transport) Read(data []byte) (int, error) {
	for {
		if t.r == nil {
			var size uint32
			if err := binary.Read(t.tpm, binary.BigEndian, &size); err != nil {
				return 0, err
			}
			t.r = io.LimitReader(t.tpm, int64(size))
		}

		n, err := t.r.Read(data)
		if err == io.EOF {
			t.r = nil
			err = nil

			var status uint32
			if err := binary.Read(t.tpm, binary.BigEndian, &status); err != nil {
				return 0, err
			}
			if n == 0 {
				continue
			}
		}
		return n, err
	}
}

// Close ends the simulator session and closes both connections.
func (t *Transport) Close() error {
	binary.Write(t.platform, binary.BigEndian, cmdSessionEnd)
	binary.Write(t.tpm, binary.BigEndian, cmdSessionEnd)
	return t.closeConnections()
}

func (t *Transport) closeConnections() (err error) {
	if e := t.platform.Close(); e != nil {
		err = fmt.Errorf("cannot close platform channel: %w", e)
	}
	if e := t.tpm.Close(); e != nil {
		err = fmt.Errorf("cannot close TPM command channel: %w", e)
	}
	return err
}

// Reset submits the reset command on the platform connection, which
// initiates a reset of the simulator and the execution of _TPM_Init().
func (t *Transport) Reset() error {
	return t.platformCommand(cmdReset)
}

// Stop submits a stop command on both channels, which initiates a shutdown
// of the simulator.
func (t *Transport) Stop() error {
	if err := binary.Write(t.platform, binary.BigEndian, cmdStop); err != nil {
		return err
	}
	return binary.Write(t.tpm, binary.BigEndian, cmdStop)
}

func (t *Transport) platformCommand(cmd uint32) error {
	if err := binary.Write(t.platform, binary.BigEndian, cmd); err != nil {
		return fmt.Errorf("cannot send command: %w", err)
	}
	var resp uint32
	if err := binary.Read(t.platform, binary.BigEndian, &resp); err != nil {
		return fmt.Errorf("cannot read response to command: %w", err)
	}
	if resp != 0 {
		return &PlatformCommandError{cmd, resp}
	}
	return nil
}
