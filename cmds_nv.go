// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// Section 31 - Non-volatile Storage

func (t *TPMContext) NVDefineSpace(authHandle HandleName, auth Auth, publicInfo *NVPublic, delegate AuthorizationDelegate) error {
	return t.RunCommand(CommandNVDefineSpace, delegate, &commandSpec{
		handles:            []HandleName{authHandle},
		params:             []interface{}{&auth, publicInfo},
		cmdFirstParamSized: true,
	})
}

func (t *TPMContext) NVUndefineSpace(authHandle, nvIndex HandleName, delegate AuthorizationDelegate) error {
	return t.RunCommand(CommandNVUndefineSpace, delegate, &commandSpec{
		handles: []HandleName{authHandle, nvIndex}})
}

func (t *TPMContext) NVReadPublic(nvIndex Handle) (*NVPublic, Name, error) {
	nvPublic := &NVPublic{}
	var name Name
	if err := t.RunCommand(CommandNVReadPublic, nil, &commandSpec{
		handles:    []HandleName{{Handle: nvIndex}},
		respParams: []interface{}{nvPublic, &name},
	}); err != nil {
		return nil, nil, err
	}
	return nvPublic, name, nil
}

func (t *TPMContext) NVWrite(authHandle, nvIndex HandleName, data MaxNVBuffer, offset uint16, delegate AuthorizationDelegate) error {
	return t.RunCommand(CommandNVWrite, delegate, &commandSpec{
		handles:            []HandleName{authHandle, nvIndex},
		params:             []interface{}{&data, offset},
		cmdFirstParamSized: true,
	})
}

func (t *TPMContext) NVWriteLock(authHandle, nvIndex HandleName, delegate AuthorizationDelegate) error {
	return t.RunCommand(CommandNVWriteLock, delegate, &commandSpec{
		handles: []HandleName{authHandle, nvIndex}})
}

func (t *TPMContext) NVRead(authHandle, nvIndex HandleName, size, offset uint16, delegate AuthorizationDelegate) (MaxNVBuffer, error) {
	var data MaxNVBuffer
	if err := t.RunCommand(CommandNVRead, delegate, &commandSpec{
		handles:             []HandleName{authHandle, nvIndex},
		params:              []interface{}{size, offset},
		respParams:          []interface{}{&data},
		respFirstParamSized: true,
	}); err != nil {
		return nil, err
	}
	return data, nil
}
