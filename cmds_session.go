// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// Section 11 - Session Commands

// StartAuthSession negotiates a new authorization session with the device.
// tpmKey is the salt decryption key (HandleNull for unsalted sessions) and
// bind the entity the session is bound to (HandleNull for unbound sessions).
// The returned nonce seeds the session's rolling nonce state.
func (t *TPMContext) StartAuthSession(tpmKey, bind HandleName, nonceCaller Nonce, encryptedSalt EncryptedSecret, sessionType SessionType, symmetric *SymDef, authHash AlgorithmId) (Handle, Nonce, error) {
	if symmetric == nil {
		symmetric = SymDefNull()
	}

	var sessionHandle Handle
	var nonceTPM Nonce
	if err := t.RunCommand(CommandStartAuthSession, nil, &commandSpec{
		handles:     []HandleName{tpmKey, bind},
		params:      []interface{}{&nonceCaller, &encryptedSalt, sessionType, symmetric, authHash},
		respHandles: []interface{}{&sessionHandle},
		respParams:  []interface{}{&nonceTPM},
	}); err != nil {
		return HandleUnassigned, nil, err
	}
	return sessionHandle, nonceTPM, nil
}
