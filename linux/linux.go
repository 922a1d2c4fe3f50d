// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

/*
Package linux provides a transport for communicating with a TPM character
device on a Linux system.
*/
package linux

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultDevicePath is the path of the first TPM character device.
const DefaultDevicePath = "/dev/tpm0"

// Transport represents a connection to a Linux TPM character device. It is
// not intended to be used from multiple goroutines simultaneously.
type Transport struct {
	file *os.File
}

// Open opens the TPM character device at the given path. An empty path
// selects DefaultDevicePath.
func Open(path string) (*Transport, error) {
	if path == "" {
		path = DefaultDevicePath
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeDevice == 0 {
		return nil, fmt.Errorf("%s is not a character device", path)
	}
	file, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	return &Transport{file: file}, nil
}

// Write submits a complete command packet to the device. The kernel
// resource manager requires the packet to arrive in a single write.
func (t *Transport) Write(data []byte) (int, error) {
	return t.file.Write(data)
}

// Read blocks until a response is available and then reads it.
func (t *Transport) Read(data []byte) (int, error) {
	if err := poll(t.file); err != nil {
		return 0, err
	}
	return t.file.Read(data)
}

// Close closes the connection to the device.
func (t *Transport) Close() error {
	return t.file.Close()
}

// poll blocks until the device has a response ready.
func poll(f *os.File) error {
	fds := []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}
