// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package testutil

import (
	"github.com/Citrus-CAF/system-tpm"
)

// FakeTPM implements the tpm2.TPM interface with overridable function
// fields. A method whose field is nil returns a benign default so tests
// only script the commands they care about. Every call is appended to
// Calls, letting a test assert that local validation failed before any
// command reached the device.
type FakeTPM struct {
	Calls []string

	StartupFn           func(startupType tpm2.StartupType) error
	ShutdownFn          func(shutdownType tpm2.StartupType) error
	SelfTestFn          func(fullTest bool) error
	GetTestResultFn     func() (tpm2.MaxBuffer, tpm2.ResponseCode, error)
	StartAuthSessionFn  func(tpmKey, bind tpm2.HandleName, nonceCaller tpm2.Nonce, encryptedSalt tpm2.EncryptedSecret, sessionType tpm2.SessionType, symmetric *tpm2.SymDef, authHash tpm2.AlgorithmId) (tpm2.Handle, tpm2.Nonce, error)
	CreateFn            func(parent tpm2.HandleName, inSensitive *tpm2.SensitiveCreate, inPublic *tpm2.Public, outsideInfo tpm2.Data, creationPCR tpm2.PCRSelectionList, delegate tpm2.AuthorizationDelegate) (tpm2.Private, *tpm2.Public, error)
	LoadFn              func(parent tpm2.HandleName, inPrivate tpm2.Private, inPublic *tpm2.Public, delegate tpm2.AuthorizationDelegate) (tpm2.Handle, tpm2.Name, error)
	ReadPublicFn        func(object tpm2.Handle) (*tpm2.Public, tpm2.Name, tpm2.Name, error)
	ObjectChangeAuthFn  func(object, parent tpm2.HandleName, newAuth tpm2.Auth, delegate tpm2.AuthorizationDelegate) (tpm2.Private, error)
	ImportFn            func(parent tpm2.HandleName, encryptionKey tpm2.Data, objectPublic *tpm2.Public, duplicate tpm2.Private, inSymSeed tpm2.EncryptedSecret, symmetricAlg *tpm2.SymDefObject, delegate tpm2.AuthorizationDelegate) (tpm2.Private, error)
	RSAEncryptFn        func(key tpm2.HandleName, message tpm2.PublicKeyRSA, scheme *tpm2.RSAScheme, label tpm2.Data, delegate tpm2.AuthorizationDelegate) (tpm2.PublicKeyRSA, error)
	RSADecryptFn        func(key tpm2.HandleName, cipherText tpm2.PublicKeyRSA, scheme *tpm2.RSAScheme, label tpm2.Data, delegate tpm2.AuthorizationDelegate) (tpm2.PublicKeyRSA, error)
	GetRandomFn         func(bytesRequested uint16, delegate tpm2.AuthorizationDelegate) (tpm2.Digest, error)
	StirRandomFn        func(inData tpm2.SensitiveData, delegate tpm2.AuthorizationDelegate) error
	SignFn              func(key tpm2.HandleName, digest tpm2.Digest, scheme *tpm2.SigScheme, validation *tpm2.TkHashcheck, delegate tpm2.AuthorizationDelegate) (*tpm2.Signature, error)
	VerifySignatureFn   func(key tpm2.HandleName, digest tpm2.Digest, signature *tpm2.Signature, delegate tpm2.AuthorizationDelegate) (*tpm2.TkVerified, error)
	PCRExtendFn         func(pcr tpm2.HandleName, digests tpm2.DigestValues, delegate tpm2.AuthorizationDelegate) error
	PCRReadFn           func(pcrSelection tpm2.PCRSelectionList) (uint32, tpm2.PCRSelectionList, tpm2.DigestList, error)
	PCRAllocateFn       func(authHandle tpm2.HandleName, pcrAllocation tpm2.PCRSelectionList, delegate tpm2.AuthorizationDelegate) (bool, error)
	PolicyORFn          func(policySession tpm2.Handle, digests tpm2.DigestList) error
	PolicyPCRFn         func(policySession tpm2.Handle, pcrDigest tpm2.Digest, pcrs tpm2.PCRSelectionList) error
	PolicyCommandCodeFn func(policySession tpm2.Handle, code tpm2.CommandCode) error
	PolicyAuthValueFn   func(policySession tpm2.Handle) error
	PolicyGetDigestFn   func(policySession tpm2.Handle) (tpm2.Digest, error)
	PolicyRestartFn     func(policySession tpm2.Handle) error
	CreatePrimaryFn     func(primaryObject tpm2.HandleName, inSensitive *tpm2.SensitiveCreate, inPublic *tpm2.Public, outsideInfo tpm2.Data, creationPCR tpm2.PCRSelectionList, delegate tpm2.AuthorizationDelegate) (tpm2.Handle, *tpm2.Public, error)
	HierarchyChangeAuthFn func(authHandle tpm2.HandleName, newAuth tpm2.Auth, delegate tpm2.AuthorizationDelegate) error
	ClearFn             func(authHandle tpm2.HandleName, delegate tpm2.AuthorizationDelegate) error
	FlushContextFn      func(flushHandle tpm2.Handle) error
	EvictControlFn      func(auth, object tpm2.HandleName, persistentHandle tpm2.Handle, delegate tpm2.AuthorizationDelegate) error
	GetCapabilityFn     func(capability tpm2.Capability, property uint32, propertyCount uint32) (bool, []tpm2.TaggedProperty, error)
	NVDefineSpaceFn     func(authHandle tpm2.HandleName, auth tpm2.Auth, publicInfo *tpm2.NVPublic, delegate tpm2.AuthorizationDelegate) error
	NVUndefineSpaceFn   func(authHandle, nvIndex tpm2.HandleName, delegate tpm2.AuthorizationDelegate) error
	NVReadPublicFn      func(nvIndex tpm2.Handle) (*tpm2.NVPublic, tpm2.Name, error)
	NVWriteFn           func(authHandle, nvIndex tpm2.HandleName, data tpm2.MaxNVBuffer, offset uint16, delegate tpm2.AuthorizationDelegate) error
	NVWriteLockFn       func(authHandle, nvIndex tpm2.HandleName, delegate tpm2.AuthorizationDelegate) error
	NVReadFn            func(authHandle, nvIndex tpm2.HandleName, size, offset uint16, delegate tpm2.AuthorizationDelegate) (tpm2.MaxNVBuffer, error)
}

var _ tpm2.TPM = (*FakeTPM)(nil)

// NewFakeTPM returns a fake with no scripted behavior.
func NewFakeTPM() *FakeTPM {
	return &FakeTPM{}
}

func (f *FakeTPM) record(name string) {
	f.Calls = append(f.Calls, name)
}

func (f *FakeTPM) Startup(startupType tpm2.StartupType) error {
	f.record("Startup")
	if f.StartupFn != nil {
		return f.StartupFn(startupType)
	}
	return nil
}

func (f *FakeTPM) Shutdown(shutdownType tpm2.StartupType) error {
	f.record("Shutdown")
	if f.ShutdownFn != nil {
		return f.ShutdownFn(shutdownType)
	}
	return nil
}

func (f *FakeTPM) SelfTest(fullTest bool) error {
	f.record("SelfTest")
	if f.SelfTestFn != nil {
		return f.SelfTestFn(fullTest)
	}
	return nil
}

func (f *FakeTPM) GetTestResult() (tpm2.MaxBuffer, tpm2.ResponseCode, error) {
	f.record("GetTestResult")
	if f.GetTestResultFn != nil {
		return f.GetTestResultFn()
	}
	return nil, tpm2.Success, nil
}

func (f *FakeTPM) StartAuthSession(tpmKey, bind tpm2.HandleName, nonceCaller tpm2.Nonce, encryptedSalt tpm2.EncryptedSecret, sessionType tpm2.SessionType, symmetric *tpm2.SymDef, authHash tpm2.AlgorithmId) (tpm2.Handle, tpm2.Nonce, error) {
	f.record("StartAuthSession")
	if f.StartAuthSessionFn != nil {
		return f.StartAuthSessionFn(tpmKey, bind, nonceCaller, encryptedSalt, sessionType, symmetric, authHash)
	}
	return tpm2.Handle(0x02000000), make(tpm2.Nonce, 32), nil
}

func (f *FakeTPM) Create(parent tpm2.HandleName, inSensitive *tpm2.SensitiveCreate, inPublic *tpm2.Public, outsideInfo tpm2.Data, creationPCR tpm2.PCRSelectionList, delegate tpm2.AuthorizationDelegate) (tpm2.Private, *tpm2.Public, error) {
	f.record("Create")
	if f.CreateFn != nil {
		return f.CreateFn(parent, inSensitive, inPublic, outsideInfo, creationPCR, delegate)
	}
	return tpm2.Private{}, inPublic, nil
}

func (f *FakeTPM) Load(parent tpm2.HandleName, inPrivate tpm2.Private, inPublic *tpm2.Public, delegate tpm2.AuthorizationDelegate) (tpm2.Handle, tpm2.Name, error) {
	f.record("Load")
	if f.LoadFn != nil {
		return f.LoadFn(parent, inPrivate, inPublic, delegate)
	}
	return tpm2.Handle(0x80000001), nil, nil
}

func (f *FakeTPM) ReadPublic(object tpm2.Handle) (*tpm2.Public, tpm2.Name, tpm2.Name, error) {
	f.record("ReadPublic")
	if f.ReadPublicFn != nil {
		return f.ReadPublicFn(object)
	}
	return &tpm2.Public{}, nil, nil, nil
}

func (f *FakeTPM) ObjectChangeAuth(object, parent tpm2.HandleName, newAuth tpm2.Auth, delegate tpm2.AuthorizationDelegate) (tpm2.Private, error) {
	f.record("ObjectChangeAuth")
	if f.ObjectChangeAuthFn != nil {
		return f.ObjectChangeAuthFn(object, parent, newAuth, delegate)
	}
	return tpm2.Private{}, nil
}

func (f *FakeTPM) Import(parent tpm2.HandleName, encryptionKey tpm2.Data, objectPublic *tpm2.Public, duplicate tpm2.Private, inSymSeed tpm2.EncryptedSecret, symmetricAlg *tpm2.SymDefObject, delegate tpm2.AuthorizationDelegate) (tpm2.Private, error) {
	f.record("Import")
	if f.ImportFn != nil {
		return f.ImportFn(parent, encryptionKey, objectPublic, duplicate, inSymSeed, symmetricAlg, delegate)
	}
	return tpm2.Private{}, nil
}

func (f *FakeTPM) RSAEncrypt(key tpm2.HandleName, message tpm2.PublicKeyRSA, scheme *tpm2.RSAScheme, label tpm2.Data, delegate tpm2.AuthorizationDelegate) (tpm2.PublicKeyRSA, error) {
	f.record("RSAEncrypt")
	if f.RSAEncryptFn != nil {
		return f.RSAEncryptFn(key, message, scheme, label, delegate)
	}
	return message, nil
}

func (f *FakeTPM) RSADecrypt(key tpm2.HandleName, cipherText tpm2.PublicKeyRSA, scheme *tpm2.RSAScheme, label tpm2.Data, delegate tpm2.AuthorizationDelegate) (tpm2.PublicKeyRSA, error) {
	f.record("RSADecrypt")
	if f.RSADecryptFn != nil {
		return f.RSADecryptFn(key, cipherText, scheme, label, delegate)
	}
	return cipherText, nil
}

func (f *FakeTPM) GetRandom(bytesRequested uint16, delegate tpm2.AuthorizationDelegate) (tpm2.Digest, error) {
	f.record("GetRandom")
	if f.GetRandomFn != nil {
		return f.GetRandomFn(bytesRequested, delegate)
	}
	return make(tpm2.Digest, bytesRequested), nil
}

func (f *FakeTPM) StirRandom(inData tpm2.SensitiveData, delegate tpm2.AuthorizationDelegate) error {
	f.record("StirRandom")
	if f.StirRandomFn != nil {
		return f.StirRandomFn(inData, delegate)
	}
	return nil
}

func (f *FakeTPM) Sign(key tpm2.HandleName, digest tpm2.Digest, scheme *tpm2.SigScheme, validation *tpm2.TkHashcheck, delegate tpm2.AuthorizationDelegate) (*tpm2.Signature, error) {
	f.record("Sign")
	if f.SignFn != nil {
		return f.SignFn(key, digest, scheme, validation, delegate)
	}
	return &tpm2.Signature{SigAlg: scheme.Scheme, HashAlg: scheme.HashAlg}, nil
}

func (f *FakeTPM) VerifySignature(key tpm2.HandleName, digest tpm2.Digest, signature *tpm2.Signature, delegate tpm2.AuthorizationDelegate) (*tpm2.TkVerified, error) {
	f.record("VerifySignature")
	if f.VerifySignatureFn != nil {
		return f.VerifySignatureFn(key, digest, signature, delegate)
	}
	return &tpm2.TkVerified{}, nil
}

func (f *FakeTPM) PCRExtend(pcr tpm2.HandleName, digests tpm2.DigestValues, delegate tpm2.AuthorizationDelegate) error {
	f.record("PCRExtend")
	if f.PCRExtendFn != nil {
		return f.PCRExtendFn(pcr, digests, delegate)
	}
	return nil
}

func (f *FakeTPM) PCRRead(pcrSelection tpm2.PCRSelectionList) (uint32, tpm2.PCRSelectionList, tpm2.DigestList, error) {
	f.record("PCRRead")
	if f.PCRReadFn != nil {
		return f.PCRReadFn(pcrSelection)
	}
	return 0, pcrSelection, tpm2.DigestList{make(tpm2.Digest, 32)}, nil
}

func (f *FakeTPM) PCRAllocate(authHandle tpm2.HandleName, pcrAllocation tpm2.PCRSelectionList, delegate tpm2.AuthorizationDelegate) (bool, error) {
	f.record("PCRAllocate")
	if f.PCRAllocateFn != nil {
		return f.PCRAllocateFn(authHandle, pcrAllocation, delegate)
	}
	return true, nil
}

func (f *FakeTPM) PolicyOR(policySession tpm2.Handle, digests tpm2.DigestList) error {
	f.record("PolicyOR")
	if f.PolicyORFn != nil {
		return f.PolicyORFn(policySession, digests)
	}
	return nil
}

func (f *FakeTPM) PolicyPCR(policySession tpm2.Handle, pcrDigest tpm2.Digest, pcrs tpm2.PCRSelectionList) error {
	f.record("PolicyPCR")
	if f.PolicyPCRFn != nil {
		return f.PolicyPCRFn(policySession, pcrDigest, pcrs)
	}
	return nil
}

func (f *FakeTPM) PolicyCommandCode(policySession tpm2.Handle, code tpm2.CommandCode) error {
	f.record("PolicyCommandCode")
	if f.PolicyCommandCodeFn != nil {
		return f.PolicyCommandCodeFn(policySession, code)
	}
	return nil
}

func (f *FakeTPM) PolicyAuthValue(policySession tpm2.Handle) error {
	f.record("PolicyAuthValue")
	if f.PolicyAuthValueFn != nil {
		return f.PolicyAuthValueFn(policySession)
	}
	return nil
}

func (f *FakeTPM) PolicyGetDigest(policySession tpm2.Handle) (tpm2.Digest, error) {
	f.record("PolicyGetDigest")
	if f.PolicyGetDigestFn != nil {
		return f.PolicyGetDigestFn(policySession)
	}
	return make(tpm2.Digest, 32), nil
}

func (f *FakeTPM) PolicyRestart(policySession tpm2.Handle) error {
	f.record("PolicyRestart")
	if f.PolicyRestartFn != nil {
		return f.PolicyRestartFn(policySession)
	}
	return nil
}

func (f *FakeTPM) CreatePrimary(primaryObject tpm2.HandleName, inSensitive *tpm2.SensitiveCreate, inPublic *tpm2.Public, outsideInfo tpm2.Data, creationPCR tpm2.PCRSelectionList, delegate tpm2.AuthorizationDelegate) (tpm2.Handle, *tpm2.Public, error) {
	f.record("CreatePrimary")
	if f.CreatePrimaryFn != nil {
		return f.CreatePrimaryFn(primaryObject, inSensitive, inPublic, outsideInfo, creationPCR, delegate)
	}
	return tpm2.Handle(0x80000001), inPublic, nil
}

func (f *FakeTPM) HierarchyChangeAuth(authHandle tpm2.HandleName, newAuth tpm2.Auth, delegate tpm2.AuthorizationDelegate) error {
	f.record("HierarchyChangeAuth")
	if f.HierarchyChangeAuthFn != nil {
		return f.HierarchyChangeAuthFn(authHandle, newAuth, delegate)
	}
	return nil
}

func (f *FakeTPM) Clear(authHandle tpm2.HandleName, delegate tpm2.AuthorizationDelegate) error {
	f.record("Clear")
	if f.ClearFn != nil {
		return f.ClearFn(authHandle, delegate)
	}
	return nil
}

func (f *FakeTPM) FlushContext(flushHandle tpm2.Handle) error {
	f.record("FlushContext")
	if f.FlushContextFn != nil {
		return f.FlushContextFn(flushHandle)
	}
	return nil
}

func (f *FakeTPM) EvictControl(auth, object tpm2.HandleName, persistentHandle tpm2.Handle, delegate tpm2.AuthorizationDelegate) error {
	f.record("EvictControl")
	if f.EvictControlFn != nil {
		return f.EvictControlFn(auth, object, persistentHandle, delegate)
	}
	return nil
}

func (f *FakeTPM) GetCapability(capability tpm2.Capability, property uint32, propertyCount uint32) (bool, []tpm2.TaggedProperty, error) {
	f.record("GetCapability")
	if f.GetCapabilityFn != nil {
		return f.GetCapabilityFn(capability, property, propertyCount)
	}
	return false, []tpm2.TaggedProperty{
		{Property: tpm2.PropertyPermanent, Value: 0},
		{Property: tpm2.PropertyStartupClear, Value: tpm2.AttrPhEnable | tpm2.AttrShEnable | tpm2.AttrEhEnable},
	}, nil
}

func (f *FakeTPM) NVDefineSpace(authHandle tpm2.HandleName, auth tpm2.Auth, publicInfo *tpm2.NVPublic, delegate tpm2.AuthorizationDelegate) error {
	f.record("NVDefineSpace")
	if f.NVDefineSpaceFn != nil {
		return f.NVDefineSpaceFn(authHandle, auth, publicInfo, delegate)
	}
	return nil
}

func (f *FakeTPM) NVUndefineSpace(authHandle, nvIndex tpm2.HandleName, delegate tpm2.AuthorizationDelegate) error {
	f.record("NVUndefineSpace")
	if f.NVUndefineSpaceFn != nil {
		return f.NVUndefineSpaceFn(authHandle, nvIndex, delegate)
	}
	return nil
}

func (f *FakeTPM) NVReadPublic(nvIndex tpm2.Handle) (*tpm2.NVPublic, tpm2.Name, error) {
	f.record("NVReadPublic")
	if f.NVReadPublicFn != nil {
		return f.NVReadPublicFn(nvIndex)
	}
	return &tpm2.NVPublic{Index: nvIndex, NameAlg: tpm2.AlgorithmSHA256}, nil, nil
}

func (f *FakeTPM) NVWrite(authHandle, nvIndex tpm2.HandleName, data tpm2.MaxNVBuffer, offset uint16, delegate tpm2.AuthorizationDelegate) error {
	f.record("NVWrite")
	if f.NVWriteFn != nil {
		return f.NVWriteFn(authHandle, nvIndex, data, offset, delegate)
	}
	return nil
}

func (f *FakeTPM) NVWriteLock(authHandle, nvIndex tpm2.HandleName, delegate tpm2.AuthorizationDelegate) error {
	f.record("NVWriteLock")
	if f.NVWriteLockFn != nil {
		return f.NVWriteLockFn(authHandle, nvIndex, delegate)
	}
	return nil
}

func (f *FakeTPM) NVRead(authHandle, nvIndex tpm2.HandleName, size, offset uint16, delegate tpm2.AuthorizationDelegate) (tpm2.MaxNVBuffer, error) {
	f.record("NVRead")
	if f.NVReadFn != nil {
		return f.NVReadFn(authHandle, nvIndex, size, offset, delegate)
	}
	return make(tpm2.MaxNVBuffer, size), nil
}
