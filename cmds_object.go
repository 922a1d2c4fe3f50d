// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"github.com/google/go-tpm/tpmutil"
)

// Section 12 - Object Commands

func (t *TPMContext) Create(parent HandleName, inSensitive *SensitiveCreate, inPublic *Public, outsideInfo Data, creationPCR PCRSelectionList, delegate AuthorizationDelegate) (Private, *Public, error) {
	if inSensitive == nil {
		inSensitive = &SensitiveCreate{}
	}

	var outPrivate Private
	outPublic := &Public{}
	var creationData tpmutil.U16Bytes
	var creationHash Digest
	var creationTicket TkCreation
	if err := t.RunCommand(CommandCreate, delegate, &commandSpec{
		handles:             []HandleName{parent},
		params:              []interface{}{inSensitive, inPublic, &outsideInfo, &creationPCR},
		respParams:          []interface{}{&outPrivate, outPublic, &creationData, &creationHash, &creationTicket},
		cmdFirstParamSized:  true,
		respFirstParamSized: true,
	}); err != nil {
		return nil, nil, err
	}
	return outPrivate, outPublic, nil
}

func (t *TPMContext) Load(parent HandleName, inPrivate Private, inPublic *Public, delegate AuthorizationDelegate) (Handle, Name, error) {
	var objectHandle Handle
	var name Name
	if err := t.RunCommand(CommandLoad, delegate, &commandSpec{
		handles:             []HandleName{parent},
		params:              []interface{}{&inPrivate, inPublic},
		respHandles:         []interface{}{&objectHandle},
		respParams:          []interface{}{&name},
		cmdFirstParamSized:  true,
		respFirstParamSized: true,
	}); err != nil {
		return HandleUnassigned, nil, err
	}
	return objectHandle, name, nil
}

func (t *TPMContext) ReadPublic(object Handle) (*Public, Name, Name, error) {
	outPublic := &Public{}
	var name, qualifiedName Name
	if err := t.RunCommand(CommandReadPublic, nil, &commandSpec{
		handles:    []HandleName{{Handle: object}},
		respParams: []interface{}{outPublic, &name, &qualifiedName},
	}); err != nil {
		return nil, nil, nil, err
	}
	return outPublic, name, qualifiedName, nil
}

func (t *TPMContext) ObjectChangeAuth(object, parent HandleName, newAuth Auth, delegate AuthorizationDelegate) (Private, error) {
	var outPrivate Private
	if err := t.RunCommand(CommandObjectChangeAuth, delegate, &commandSpec{
		handles:             []HandleName{object, parent},
		params:              []interface{}{&newAuth},
		respParams:          []interface{}{&outPrivate},
		cmdFirstParamSized:  true,
		respFirstParamSized: true,
	}); err != nil {
		return nil, err
	}
	return outPrivate, nil
}

// Section 13 - Duplication Commands

func (t *TPMContext) Import(parent HandleName, encryptionKey Data, objectPublic *Public, duplicate Private, inSymSeed EncryptedSecret, symmetricAlg *SymDefObject, delegate AuthorizationDelegate) (Private, error) {
	if symmetricAlg == nil {
		symmetricAlg = SymDefNull()
	}

	var outPrivate Private
	if err := t.RunCommand(CommandImport, delegate, &commandSpec{
		handles:             []HandleName{parent},
		params:              []interface{}{&encryptionKey, objectPublic, &duplicate, &inSymSeed, symmetricAlg},
		respParams:          []interface{}{&outPrivate},
		cmdFirstParamSized:  true,
		respFirstParamSized: true,
	}); err != nil {
		return nil, err
	}
	return outPrivate, nil
}

// Section 14 - Asymmetric Primitives

func (t *TPMContext) RSAEncrypt(key HandleName, message PublicKeyRSA, scheme *RSAScheme, label Data, delegate AuthorizationDelegate) (PublicKeyRSA, error) {
	if scheme == nil {
		scheme = &RSAScheme{Scheme: AlgorithmNull}
	}

	var outData PublicKeyRSA
	if err := t.RunCommand(CommandRSAEncrypt, delegate, &commandSpec{
		handles:             []HandleName{key},
		params:              []interface{}{&message, scheme, &label},
		respParams:          []interface{}{&outData},
		cmdFirstParamSized:  true,
		respFirstParamSized: true,
	}); err != nil {
		return nil, err
	}
	return outData, nil
}

func (t *TPMContext) RSADecrypt(key HandleName, cipherText PublicKeyRSA, scheme *RSAScheme, label Data, delegate AuthorizationDelegate) (PublicKeyRSA, error) {
	if scheme == nil {
		scheme = &RSAScheme{Scheme: AlgorithmNull}
	}

	var message PublicKeyRSA
	if err := t.RunCommand(CommandRSADecrypt, delegate, &commandSpec{
		handles:             []HandleName{key},
		params:              []interface{}{&cipherText, scheme, &label},
		respParams:          []interface{}{&message},
		cmdFirstParamSized:  true,
		respFirstParamSized: true,
	}); err != nil {
		return nil, err
	}
	return message, nil
}
