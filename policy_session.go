// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"errors"
	"sort"
)

// PolicySession accumulates a policy digest through a sequence of policy
// assertions. A trial session computes the digest that gets bound into a
// key's creation policy; a real session must later replay the identical
// assertion sequence to satisfy that policy. Callers gating several
// operations on one live session re-assert before each operation; the
// digest is not assumed to persist across uses.
type PolicySession struct {
	manager     *SessionManager
	delegate    *HMACAuthorizationDelegate
	sessionType SessionType
}

// NewPolicySession returns a real policy session that hasn't been started
// yet. Operations authorized through it require the policy to be satisfied.
func NewPolicySession(tpm TPM) *PolicySession {
	return newPolicySession(tpm, SessionTypePolicy)
}

// NewTrialPolicySession returns a trial session, used to compute a policy
// digest without requiring real authorization.
func NewTrialPolicySession(tpm TPM) *PolicySession {
	return newPolicySession(tpm, SessionTypeTrial)
}

func newPolicySession(tpm TPM, sessionType SessionType) *PolicySession {
	return &PolicySession{
		manager:     NewSessionManager(tpm),
		delegate:    NewHMACAuthorizationDelegate(),
		sessionType: sessionType,
	}
}

// StartUnboundSession negotiates a fresh unbound session with the device.
func (s *PolicySession) StartUnboundSession(salted, enableEncryption bool) error {
	return s.manager.StartSession(s.sessionType, HandleName{Handle: HandleNull}, nil, salted, enableEncryption, s.delegate)
}

// GetDelegate returns the delegate bound to the session's current nonces.
func (s *PolicySession) GetDelegate() AuthorizationDelegate {
	if s.manager.SessionHandle() == HandleUnassigned {
		return nil
	}
	return s.delegate
}

// SetEntityAuthorizationValue records the secret proven when the session
// authorizes an operation gated on PolicyAuthValue.
func (s *PolicySession) SetEntityAuthorizationValue(value []byte) {
	s.delegate.SetEntityAuthorizationValue(value)
}

// PolicyAuthValue appends the "prove knowledge of the authorization value"
// assertion to the running digest. On a real session it additionally makes
// subsequent commands on this session require the bound value.
func (s *PolicySession) PolicyAuthValue() error {
	return s.tpmOp(func(tpm TPM, handle Handle) error {
		return tpm.PolicyAuthValue(handle)
	})
}

// PolicyOR appends an assertion that is satisfied when the session digest
// matches any of the given digests.
func (s *PolicySession) PolicyOR(digests DigestList) error {
	return s.tpmOp(func(tpm TPM, handle Handle) error {
		return tpm.PolicyOR(handle, digests)
	})
}

// PolicyCommandCode restricts the session to authorizing a single command.
func (s *PolicySession) PolicyCommandCode(code CommandCode) error {
	return s.tpmOp(func(tpm TPM, handle Handle) error {
		return tpm.PolicyCommandCode(handle, code)
	})
}

// PolicyPCR appends an assertion over the given PCR values, supplied as a
// map from PCR index to expected digest. The device checks the live PCR
// contents against the digest of the selected values.
func (s *PolicySession) PolicyPCR(pcrValues map[int][]byte) error {
	if len(pcrValues) == 0 {
		return errors.New("no PCR values provided")
	}
	indices := make([]int, 0, len(pcrValues))
	for index := range pcrValues {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	hashAlg, _ := sessionHashAlgorithm.Hash()
	h := hashAlg.New()
	for _, index := range indices {
		h.Write(pcrValues[index])
	}
	selection := PCRSelectionList{{Hash: sessionHashAlgorithm, PCRs: indices}}

	return s.tpmOp(func(tpm TPM, handle Handle) error {
		return tpm.PolicyPCR(handle, h.Sum(nil), selection)
	})
}

// GetDigest returns the current policy digest.
func (s *PolicySession) GetDigest() (Digest, error) {
	if s.manager.SessionHandle() == HandleUnassigned {
		return nil, errors.New("session is not started")
	}
	return s.manager.tpm.PolicyGetDigest(s.manager.SessionHandle())
}

// Restart resets the session's policy digest so the assertion sequence can
// be replayed without negotiating a new session.
func (s *PolicySession) Restart() error {
	return s.tpmOp(func(tpm TPM, handle Handle) error {
		return tpm.PolicyRestart(handle)
	})
}

// Close flushes the session handle.
func (s *PolicySession) Close() error {
	return s.manager.CloseSession()
}

func (s *PolicySession) tpmOp(op func(tpm TPM, handle Handle) error) error {
	if s.manager.SessionHandle() == HandleUnassigned {
		return errors.New("session is not started")
	}
	return op(s.manager.tpm, s.manager.SessionHandle())
}
