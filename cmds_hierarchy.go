// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"github.com/google/go-tpm/tpmutil"
)

// Section 24 - Hierarchy Commands

func (t *TPMContext) CreatePrimary(primaryObject HandleName, inSensitive *SensitiveCreate, inPublic *Public, outsideInfo Data, creationPCR PCRSelectionList, delegate AuthorizationDelegate) (Handle, *Public, error) {
	if inSensitive == nil {
		inSensitive = &SensitiveCreate{}
	}

	var objectHandle Handle
	outPublic := &Public{}
	var creationData tpmutil.U16Bytes
	var creationHash Digest
	var creationTicket TkCreation
	var name Name
	if err := t.RunCommand(CommandCreatePrimary, delegate, &commandSpec{
		handles:             []HandleName{primaryObject},
		params:              []interface{}{inSensitive, inPublic, &outsideInfo, &creationPCR},
		respHandles:         []interface{}{&objectHandle},
		respParams:          []interface{}{outPublic, &creationData, &creationHash, &creationTicket, &name},
		cmdFirstParamSized:  true,
		respFirstParamSized: true,
	}); err != nil {
		return HandleUnassigned, nil, err
	}
	return objectHandle, outPublic, nil
}

func (t *TPMContext) HierarchyChangeAuth(authHandle HandleName, newAuth Auth, delegate AuthorizationDelegate) error {
	return t.RunCommand(CommandHierarchyChangeAuth, delegate, &commandSpec{
		handles:            []HandleName{authHandle},
		params:             []interface{}{&newAuth},
		cmdFirstParamSized: true,
	})
}

func (t *TPMContext) Clear(authHandle HandleName, delegate AuthorizationDelegate) error {
	return t.RunCommand(CommandClear, delegate, &commandSpec{
		handles: []HandleName{authHandle}})
}

// Section 28 - Context Management

func (t *TPMContext) FlushContext(flushHandle Handle) error {
	return t.RunCommand(CommandFlushContext, nil, &commandSpec{
		params: []interface{}{flushHandle}})
}

func (t *TPMContext) EvictControl(auth, object HandleName, persistentHandle Handle, delegate AuthorizationDelegate) error {
	return t.RunCommand(CommandEvictControl, delegate, &commandSpec{
		handles: []HandleName{auth, object},
		params:  []interface{}{persistentHandle}})
}
