// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// HMACSession proves knowledge of an entity's authorization value without
// revealing it: every command authorized through the session's delegate
// carries an HMAC keyed by the session key and the recorded value. Not safe
// for concurrent use; the nonce state rolls with each command.
type HMACSession struct {
	manager  *SessionManager
	delegate *HMACAuthorizationDelegate
}

// NewHMACSession returns an HMAC session that hasn't been started yet.
func NewHMACSession(tpm TPM) *HMACSession {
	return &HMACSession{
		manager:  NewSessionManager(tpm),
		delegate: NewHMACAuthorizationDelegate(),
	}
}

// StartUnboundSession negotiates a fresh unbound session with the device.
func (s *HMACSession) StartUnboundSession(salted, enableEncryption bool) error {
	return s.manager.StartSession(SessionTypeHMAC, HandleName{Handle: HandleNull}, nil, salted, enableEncryption, s.delegate)
}

// GetDelegate returns the delegate bound to the session's current nonces.
func (s *HMACSession) GetDelegate() AuthorizationDelegate {
	if s.manager.SessionHandle() == HandleUnassigned {
		return nil
	}
	return s.delegate
}

// SetEntityAuthorizationValue records the secret proven by subsequent
// commands.
func (s *HMACSession) SetEntityAuthorizationValue(value []byte) {
	s.delegate.SetEntityAuthorizationValue(value)
}

// SetFutureAuthorizationValue records the value an upcoming command will
// assign to the authorized entity, needed to verify that command's response
// HMAC.
func (s *HMACSession) SetFutureAuthorizationValue(value []byte) {
	s.delegate.SetFutureAuthorizationValue(value)
}

// Close flushes the session handle.
func (s *HMACSession) Close() error {
	return s.manager.CloseSession()
}
