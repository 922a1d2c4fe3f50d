// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// Section 16 - Random Number Generator

func (t *TPMContext) GetRandom(bytesRequested uint16, delegate AuthorizationDelegate) (Digest, error) {
	var randomBytes Digest
	if err := t.RunCommand(CommandGetRandom, delegate, &commandSpec{
		params:              []interface{}{bytesRequested},
		respParams:          []interface{}{&randomBytes},
		respFirstParamSized: true,
	}); err != nil {
		return nil, err
	}
	return randomBytes, nil
}

func (t *TPMContext) StirRandom(inData SensitiveData, delegate AuthorizationDelegate) error {
	return t.RunCommand(CommandStirRandom, delegate, &commandSpec{
		params:             []interface{}{&inData},
		cmdFirstParamSized: true,
	})
}
