// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"crypto/rand"

	"golang.org/x/xerrors"
)

// Session is the capability shared by HMAC and policy sessions: it owns one
// device session slot and produces the authorization delegate bound to that
// session's live nonce state. Sessions hold a finite device resource and
// must be closed on every exit path.
type Session interface {
	// StartUnboundSession negotiates a fresh session that is not bound to
	// any entity. When salted is true the session key is strengthened with
	// a secret encrypted to the persistent salting key. enableEncryption
	// turns on parameter encryption for eligible commands.
	StartUnboundSession(salted, enableEncryption bool) error

	// GetDelegate returns the delegate bound to the session's current
	// nonce pair. The delegate must not be used after Close.
	GetDelegate() AuthorizationDelegate

	// SetEntityAuthorizationValue records the secret to be proven by
	// subsequent commands. It is never transmitted.
	SetEntityAuthorizationValue(value []byte)

	// Close flushes the session handle.
	Close() error
}

// SessionManager negotiates session handles with the device and keeps track
// of the one live handle it owns. It is shared by the HMAC and policy
// session types.
type SessionManager struct {
	tpm           TPM
	sessionHandle Handle
}

// NewSessionManager returns a manager with no live session.
func NewSessionManager(tpm TPM) *SessionManager {
	return &SessionManager{tpm: tpm, sessionHandle: HandleUnassigned}
}

// SessionHandle returns the handle of the live session, or HandleUnassigned.
func (m *SessionManager) SessionHandle() Handle {
	return m.sessionHandle
}

// StartSession negotiates a new session of the given type and initializes
// the supplied delegate with the negotiated handle, nonces and session key.
// Any previously owned session is flushed first.
func (m *SessionManager) StartSession(sessionType SessionType, bind HandleName, bindAuth []byte, salted, enableEncryption bool, delegate *HMACAuthorizationDelegate) error {
	if m.sessionHandle != HandleUnassigned {
		if err := m.CloseSession(); err != nil {
			return err
		}
	}

	hashAlg, _ := sessionHashAlgorithm.Hash()
	nonceCaller := make(Nonce, hashAlg.Size())
	if _, err := rand.Read(nonceCaller); err != nil {
		return xerrors.Errorf("cannot generate caller nonce: %w", err)
	}

	tpmKey := HandleName{Handle: HandleNull}
	var salt []byte
	var encryptedSalt EncryptedSecret
	if salted {
		saltingPublic, saltingName, _, err := m.tpm.ReadPublic(SaltingKeyHandle)
		if err != nil {
			return xerrors.Errorf("cannot read public area of salting key: %w", err)
		}
		salt, encryptedSalt, err = CryptSecretEncrypt(saltingPublic, saltLabel)
		if err != nil {
			return xerrors.Errorf("cannot encrypt session salt: %w", err)
		}
		tpmKey = HandleName{Handle: SaltingKeyHandle, Name: saltingName}
	}

	handle, nonceTPM, err := m.tpm.StartAuthSession(tpmKey, bind, nonceCaller, encryptedSalt, sessionType, SymDefAES256CFB(), sessionHashAlgorithm)
	if err != nil {
		return err
	}

	if err := delegate.InitSession(handle, nonceTPM, nonceCaller, salt, bindAuth, enableEncryption); err != nil {
		// The session was created; don't leak the slot.
		m.tpm.FlushContext(handle)
		return err
	}
	m.sessionHandle = handle
	return nil
}

// CloseSession flushes the session handle owned by the manager. It is a
// no-op when no session is live.
func (m *SessionManager) CloseSession() error {
	if m.sessionHandle == HandleUnassigned {
		return nil
	}
	if err := m.tpm.FlushContext(m.sessionHandle); err != nil {
		return err
	}
	m.sessionHandle = HandleUnassigned
	return nil
}
