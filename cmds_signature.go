// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// Section 20 - Signing and Signature Verification

func (t *TPMContext) Sign(key HandleName, digest Digest, scheme *SigScheme, validation *TkHashcheck, delegate AuthorizationDelegate) (*Signature, error) {
	if scheme == nil {
		scheme = &SigScheme{Scheme: AlgorithmNull}
	}
	if validation == nil {
		validation = NullTicket()
	}

	signature := &Signature{}
	if err := t.RunCommand(CommandSign, delegate, &commandSpec{
		handles:            []HandleName{key},
		params:             []interface{}{&digest, scheme, validation},
		respParams:         []interface{}{signature},
		cmdFirstParamSized: true,
	}); err != nil {
		return nil, err
	}
	return signature, nil
}

func (t *TPMContext) VerifySignature(key HandleName, digest Digest, signature *Signature, delegate AuthorizationDelegate) (*TkVerified, error) {
	validation := &TkVerified{}
	if err := t.RunCommand(CommandVerifySignature, delegate, &commandSpec{
		handles:            []HandleName{key},
		params:             []interface{}{&digest, signature},
		respParams:         []interface{}{validation},
		cmdFirstParamSized: true,
	}); err != nil {
		return nil, err
	}
	return validation, nil
}
