// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"io"
)

// Transport represents a connection to a TPM device. A Write submits one
// marshaled command; the subsequent Read returns the complete marshaled
// response. Implementations for a Linux character device and for the
// Microsoft TPM 2.0 simulator live in the linux and mssim subpackages.
type Transport interface {
	io.ReadWriteCloser
}

// maxResponseSize is the largest response buffer accepted from a transport.
const maxResponseSize = 4096
