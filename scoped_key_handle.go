// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// ScopedKeyHandle owns a loaded transient object handle and flushes it
// exactly once. The zero handle state is HandleUnassigned; Close on an
// unassigned or released handle is a no-op.
type ScopedKeyHandle struct {
	tpm    TPM
	handle Handle
	name   Name
}

// NewScopedKeyHandle takes ownership of the supplied transient handle.
func NewScopedKeyHandle(tpm TPM, handle Handle, name Name) *ScopedKeyHandle {
	return &ScopedKeyHandle{tpm: tpm, handle: handle, name: name}
}

// Handle returns the owned handle, or HandleUnassigned after Close or
// Release.
func (h *ScopedKeyHandle) Handle() Handle {
	return h.handle
}

// Name returns the name of the loaded object.
func (h *ScopedKeyHandle) Name() Name {
	return h.name
}

// HandleName returns the handle together with its name, in the form the
// command layer needs for authorized commands.
func (h *ScopedKeyHandle) HandleName() HandleName {
	return HandleName{Handle: h.handle, Name: h.name}
}

// Release transfers ownership of the handle to the caller. A subsequent
// Close does not flush it.
func (h *ScopedKeyHandle) Release() Handle {
	handle := h.handle
	h.handle = HandleUnassigned
	return handle
}

// Close flushes the owned handle.
func (h *ScopedKeyHandle) Close() error {
	if h.handle == HandleUnassigned {
		return nil
	}
	err := h.tpm.FlushContext(h.handle)
	h.handle = HandleUnassigned
	return err
}
