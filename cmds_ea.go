// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// Section 23 - Enhanced Authorization (EA) Commands

func (t *TPMContext) PolicyOR(policySession Handle, digests DigestList) error {
	return t.RunCommand(CommandPolicyOR, nil, &commandSpec{
		handles: []HandleName{{Handle: policySession}},
		params:  []interface{}{&digests}})
}

func (t *TPMContext) PolicyPCR(policySession Handle, pcrDigest Digest, pcrs PCRSelectionList) error {
	return t.RunCommand(CommandPolicyPCR, nil, &commandSpec{
		handles: []HandleName{{Handle: policySession}},
		params:  []interface{}{&pcrDigest, &pcrs}})
}

func (t *TPMContext) PolicyCommandCode(policySession Handle, code CommandCode) error {
	return t.RunCommand(CommandPolicyCommandCode, nil, &commandSpec{
		handles: []HandleName{{Handle: policySession}},
		params:  []interface{}{code}})
}

func (t *TPMContext) PolicyAuthValue(policySession Handle) error {
	return t.RunCommand(CommandPolicyAuthValue, nil, &commandSpec{
		handles: []HandleName{{Handle: policySession}}})
}

func (t *TPMContext) PolicyGetDigest(policySession Handle) (Digest, error) {
	var policyDigest Digest
	if err := t.RunCommand(CommandPolicyGetDigest, nil, &commandSpec{
		handles:    []HandleName{{Handle: policySession}},
		respParams: []interface{}{&policyDigest},
	}); err != nil {
		return nil, err
	}
	return policyDigest, nil
}

func (t *TPMContext) PolicyRestart(policySession Handle) error {
	return t.RunCommand(CommandPolicyRestart, nil, &commandSpec{
		handles: []HandleName{{Handle: policySession}}})
}
