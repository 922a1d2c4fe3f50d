// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// Section 22 - Integrity Collection (PCR)

func (t *TPMContext) PCRExtend(pcr HandleName, digests DigestValues, delegate AuthorizationDelegate) error {
	return t.RunCommand(CommandPCRExtend, delegate, &commandSpec{
		handles: []HandleName{pcr},
		params:  []interface{}{&digests}})
}

func (t *TPMContext) PCRRead(pcrSelection PCRSelectionList) (uint32, PCRSelectionList, DigestList, error) {
	var pcrUpdateCounter uint32
	var pcrSelectionOut PCRSelectionList
	var pcrValues DigestList
	if err := t.RunCommand(CommandPCRRead, nil, &commandSpec{
		params:     []interface{}{&pcrSelection},
		respParams: []interface{}{&pcrUpdateCounter, &pcrSelectionOut, &pcrValues},
	}); err != nil {
		return 0, nil, nil, err
	}
	return pcrUpdateCounter, pcrSelectionOut, pcrValues, nil
}

func (t *TPMContext) PCRAllocate(authHandle HandleName, pcrAllocation PCRSelectionList, delegate AuthorizationDelegate) (bool, error) {
	var allocationSuccess uint8
	var maxPCR, sizeNeeded, sizeAvailable uint32
	if err := t.RunCommand(CommandPCRAllocate, delegate, &commandSpec{
		handles:    []HandleName{authHandle},
		params:     []interface{}{&pcrAllocation},
		respParams: []interface{}{&allocationSuccess, &maxPCR, &sizeNeeded, &sizeAvailable},
	}); err != nil {
		return false, err
	}
	return allocationSuccess != 0, nil
}
