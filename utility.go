// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"bytes"
	"crypto/rand"
	"errors"
	"sync"

	"github.com/google/go-tpm/tpmutil"
	"golang.org/x/xerrors"
)

// Utility implements the higher level operations of this package: device
// provisioning, key creation, import and use, and the NV space lifecycle.
// Local argument validation happens before any command reaches the device,
// so a call that fails with ErrInvalidSession, ErrBadParameter or
// ErrBadSize has not changed device state.
//
// A Utility is safe for concurrent use. The NV public area cache is the
// only shared mutable state and is guarded by a mutex; the delegates and
// sessions passed in by callers are not, and must not be shared across
// goroutines.
type Utility struct {
	tpm TPM

	mu      sync.Mutex
	nvCache map[uint32]*NVPublic
}

// NewUtility returns a Utility operating on the supplied device.
func NewUtility(tpm TPM) *Utility {
	return &Utility{tpm: tpm, nvCache: make(map[uint32]*NVPublic)}
}

// Startup starts the device and runs the full self test. A device that is
// already started is not an error.
func (u *Utility) Startup() error {
	if err := u.tpm.Startup(StartupClear); err != nil && !IsTPMError(err, ErrorInitialize, CommandStartup) {
		return err
	}
	return u.tpm.SelfTest(true)
}

// Clear wipes the owner hierarchy using platform authorization. When the
// platform authorization hasn't been established yet the device is
// initialized first and the clear retried once.
func (u *Utility) Clear() error {
	delegate := NewPasswordAuthorizationDelegate(nil)
	err := u.tpm.Clear(HandleName{Handle: HandlePlatform}, delegate)
	if IsTPMError(err, ErrorAuthMissing, CommandClear) {
		if err := u.InitializeTPM(); err != nil {
			return err
		}
		err = u.tpm.Clear(HandleName{Handle: HandlePlatform}, delegate)
	}
	return err
}

// Shutdown performs an orderly shutdown.
func (u *Utility) Shutdown() error {
	return u.tpm.Shutdown(StartupClear)
}

// CheckState verifies that the device is in a usable state: not in
// dictionary attack lockout, storage hierarchy enabled, self test passed.
func (u *Utility) CheckState() error {
	state := NewTPMState(u.tpm)
	if err := state.Refresh(); err != nil {
		return err
	}
	if state.InLockout() {
		return errors.New("device is in dictionary attack lockout")
	}
	if !state.StorageHierarchyEnabled() {
		return errors.New("storage hierarchy is disabled")
	}
	_, testResult, err := u.tpm.GetTestResult()
	if err != nil {
		return err
	}
	if testResult != Success {
		return xerrors.Errorf("device self test failed with response code 0x%x", uint32(testResult))
	}
	return nil
}

// InitializeTPM prepares a freshly started device: it runs Startup, and if
// the platform hierarchy is still enabled it allocates the SHA-256 PCR bank
// and establishes an empty platform authorization.
func (u *Utility) InitializeTPM() error {
	if err := u.Startup(); err != nil {
		return err
	}
	state := NewTPMState(u.tpm)
	if err := state.Refresh(); err != nil {
		return err
	}
	if !state.PlatformHierarchyEnabled() {
		return nil
	}
	if err := u.AllocatePCR(nil); err != nil {
		return err
	}
	return u.tpm.HierarchyChangeAuth(HandleName{Handle: HandlePlatform}, nil, NewPasswordAuthorizationDelegate(nil))
}

// AllocatePCR assigns every PCR to the SHA-256 bank. The allocation takes
// effect at the next startup.
func (u *Utility) AllocatePCR(platformPassword []byte) error {
	pcrs := make([]int, PCRCount)
	for i := range pcrs {
		pcrs[i] = i
	}
	allocation := PCRSelectionList{{Hash: AlgorithmSHA256, PCRs: pcrs}}
	success, err := u.tpm.PCRAllocate(HandleName{Handle: HandlePlatform}, allocation, NewPasswordAuthorizationDelegate(platformPassword))
	if err != nil {
		return err
	}
	if !success {
		return errors.New("device rejected the PCR allocation")
	}
	return nil
}

// TakeOwnership establishes authorization values for the owner,
// endorsement and lockout hierarchies. Hierarchies whose value is already
// set are skipped, so the operation is idempotent and can be resumed after
// a partial failure.
func (u *Utility) TakeOwnership(ownerPassword, endorsementPassword, lockoutPassword []byte) error {
	session := NewHMACSession(u.tpm)
	if err := session.StartUnboundSession(true, false); err != nil {
		return xerrors.Errorf("cannot start session for taking ownership: %w", err)
	}
	defer session.Close()

	state := NewTPMState(u.tpm)
	if err := state.Refresh(); err != nil {
		return err
	}
	if !state.OwnerAuthSet() {
		if err := u.changeHierarchyAuth(session, HandleOwner, ownerPassword); err != nil {
			return xerrors.Errorf("cannot set owner authorization: %w", err)
		}
	}
	if !state.EndorsementAuthSet() {
		if err := u.changeHierarchyAuth(session, HandleEndorsement, endorsementPassword); err != nil {
			return xerrors.Errorf("cannot set endorsement authorization: %w", err)
		}
	}
	if !state.LockoutAuthSet() {
		if err := u.changeHierarchyAuth(session, HandleLockout, lockoutPassword); err != nil {
			return xerrors.Errorf("cannot set lockout authorization: %w", err)
		}
	}
	return nil
}

// SetKnownOwnerPassword sets the owner authorization to a known value if no
// owner authorization has been established yet.
func (u *Utility) SetKnownOwnerPassword(knownPassword []byte) error {
	state := NewTPMState(u.tpm)
	if err := state.Refresh(); err != nil {
		return err
	}
	if state.OwnerAuthSet() {
		return nil
	}
	session := NewHMACSession(u.tpm)
	if err := session.StartUnboundSession(true, false); err != nil {
		return err
	}
	defer session.Close()
	return u.changeHierarchyAuth(session, HandleOwner, knownPassword)
}

// changeHierarchyAuth changes a hierarchy authorization from empty to the
// supplied value over the given session. The new value has to be recorded
// with the delegate before the command runs so the response HMAC, which is
// keyed by the new value, can be verified.
func (u *Utility) changeHierarchyAuth(session *HMACSession, hierarchy Handle, newPassword []byte) error {
	session.SetEntityAuthorizationValue(nil)
	session.SetFutureAuthorizationValue(newPassword)
	return u.tpm.HierarchyChangeAuth(HandleName{Handle: hierarchy}, newPassword, session.GetDelegate())
}

// CreateStorageRootKeys creates the RSA and ECC storage root keys and makes
// them persistent at their well-known handles. Keys that already exist are
// left alone.
func (u *Utility) CreateStorageRootKeys(ownerPassword []byte) error {
	if err := u.createPersistentPrimary(StorageRootKeyTemplate(), StorageRootKeyHandle, ownerPassword); err != nil {
		return xerrors.Errorf("cannot create RSA storage root key: %w", err)
	}
	if err := u.createPersistentPrimary(ECCStorageRootKeyTemplate(), ECCStorageRootKeyHandle, ownerPassword); err != nil {
		return xerrors.Errorf("cannot create ECC storage root key: %w", err)
	}
	return nil
}

func (u *Utility) createPersistentPrimary(template *Public, persistentHandle Handle, ownerPassword []byte) error {
	if _, _, _, err := u.tpm.ReadPublic(persistentHandle); err == nil {
		return nil
	}
	delegate := NewPasswordAuthorizationDelegate(ownerPassword)
	handle, outPublic, err := u.tpm.CreatePrimary(HandleName{Handle: HandleOwner}, nil, template, nil, nil, delegate)
	if err != nil {
		return err
	}
	name, err := ObjectName(outPublic)
	if err != nil {
		u.tpm.FlushContext(handle)
		return err
	}
	key := NewScopedKeyHandle(u.tpm, handle, name)
	defer key.Close()
	return u.tpm.EvictControl(HandleName{Handle: HandleOwner}, key.HandleName(), persistentHandle, delegate)
}

// CreateSaltingKey creates the session salting key under the RSA storage
// root key and makes it persistent. An existing salting key is left alone.
func (u *Utility) CreateSaltingKey(ownerPassword []byte) error {
	if _, _, _, err := u.tpm.ReadPublic(SaltingKeyHandle); err == nil {
		return nil
	}
	srk, err := u.storageRootKeyName()
	if err != nil {
		return err
	}
	// The storage root key has an empty authorization value.
	srkDelegate := NewPasswordAuthorizationDelegate(nil)
	outPrivate, outPublic, err := u.tpm.Create(srk, nil, SaltingKeyTemplate(), nil, nil, srkDelegate)
	if err != nil {
		return xerrors.Errorf("cannot create salting key: %w", err)
	}
	handle, name, err := u.tpm.Load(srk, outPrivate, outPublic, srkDelegate)
	if err != nil {
		return xerrors.Errorf("cannot load salting key: %w", err)
	}
	key := NewScopedKeyHandle(u.tpm, handle, name)
	defer key.Close()
	return u.tpm.EvictControl(HandleName{Handle: HandleOwner}, key.HandleName(), SaltingKeyHandle, NewPasswordAuthorizationDelegate(ownerPassword))
}

func (u *Utility) storageRootKeyName() (HandleName, error) {
	_, name, _, err := u.tpm.ReadPublic(StorageRootKeyHandle)
	if err != nil {
		return HandleName{}, xerrors.Errorf("cannot read public area of storage root key: %w", err)
	}
	return HandleName{Handle: StorageRootKeyHandle, Name: name}, nil
}

// GenerateRandom returns exactly numBytes of entropy from the device,
// issuing as many GetRandom commands as needed.
func (u *Utility) GenerateRandom(numBytes int, delegate AuthorizationDelegate) ([]byte, error) {
	if numBytes < 0 {
		return nil, xerrors.Errorf("negative byte count: %w", ErrBadParameter)
	}
	random := make([]byte, 0, numBytes)
	for len(random) < numBytes {
		n := numBytes - len(random)
		if n > MaxRandomBytes {
			n = MaxRandomBytes
		}
		data, err := u.tpm.GetRandom(uint16(n), delegate)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.New("device returned no random bytes")
		}
		random = append(random, data...)
	}
	return random[:numBytes], nil
}

// StirRandom mixes the supplied seed into the device's entropy pool.
func (u *Utility) StirRandom(seed []byte, delegate AuthorizationDelegate) error {
	if len(seed) > MaxStirBytes {
		return xerrors.Errorf("seed of %d bytes exceeds the device limit: %w", len(seed), ErrBadSize)
	}
	return u.tpm.StirRandom(seed, delegate)
}

// ExtendPCR hashes data with SHA-256 and extends the result into the given
// PCR.
func (u *Utility) ExtendPCR(index int, data []byte, delegate AuthorizationDelegate) error {
	if index < 0 || index >= PCRCount {
		return xerrors.Errorf("PCR index %d out of range: %w", index, ErrBadParameter)
	}
	if delegate == nil {
		return xerrors.Errorf("cannot extend PCR: %w", ErrInvalidSession)
	}
	hashAlg, _ := sessionHashAlgorithm.Hash()
	h := hashAlg.New()
	h.Write(data)
	digests := DigestValues{{HashAlg: sessionHashAlgorithm, Digest: h.Sum(nil)}}
	return u.tpm.PCRExtend(HandleName{Handle: Handle(index)}, digests, delegate)
}

// ReadPCR returns the SHA-256 bank value of the given PCR.
func (u *Utility) ReadPCR(index int) ([]byte, error) {
	if index < 0 || index >= PCRCount {
		return nil, xerrors.Errorf("PCR index %d out of range: %w", index, ErrBadParameter)
	}
	selection := PCRSelectionList{{Hash: AlgorithmSHA256, PCRs: []int{index}}}
	_, _, digests, err := u.tpm.PCRRead(selection)
	if err != nil {
		return nil, err
	}
	if len(digests) != 1 {
		return nil, xerrors.Errorf("device returned %d digests for a single PCR", len(digests))
	}
	return digests[0], nil
}

// hashAlgorithmForDigest infers the hash algorithm from a digest length.
func hashAlgorithmForDigest(size int) (AlgorithmId, bool) {
	switch size {
	case 20:
		return AlgorithmSHA1, true
	case 32:
		return AlgorithmSHA256, true
	case 48:
		return AlgorithmSHA384, true
	case 64:
		return AlgorithmSHA512, true
	default:
		return AlgorithmNull, false
	}
}

// decideSignScheme resolves the requested signing scheme and hash against
// the digest being signed. A null scheme selects RSASSA and a null hash is
// inferred from the digest length.
func decideSignScheme(scheme, hashAlg AlgorithmId, digestSize int) (*SigScheme, error) {
	switch scheme {
	case AlgorithmNull:
		scheme = AlgorithmRSASSA
	case AlgorithmRSASSA, AlgorithmRSAPSS:
	default:
		return nil, xerrors.Errorf("unsupported signing scheme %v: %w", scheme, ErrBadParameter)
	}
	if hashAlg == AlgorithmNull {
		inferred, ok := hashAlgorithmForDigest(digestSize)
		if !ok {
			return nil, xerrors.Errorf("cannot infer hash algorithm from a %d byte digest: %w", digestSize, ErrBadParameter)
		}
		hashAlg = inferred
	} else if hashAlg.Size() != digestSize {
		return nil, xerrors.Errorf("digest length %d does not match hash algorithm %v: %w", digestSize, hashAlg, ErrBadParameter)
	}
	return &SigScheme{Scheme: scheme, HashAlg: hashAlg}, nil
}

// decideEncryptScheme resolves the requested encryption scheme. A null
// scheme selects OAEP and a null hash selects SHA-256.
func decideEncryptScheme(scheme, hashAlg AlgorithmId) (*RSAScheme, error) {
	switch scheme {
	case AlgorithmNull:
		scheme = AlgorithmOAEP
	case AlgorithmOAEP, AlgorithmRSAES:
	default:
		return nil, xerrors.Errorf("unsupported encryption scheme %v: %w", scheme, ErrBadParameter)
	}
	if hashAlg == AlgorithmNull {
		hashAlg = AlgorithmSHA256
	}
	return &RSAScheme{Scheme: scheme, HashAlg: hashAlg}, nil
}

// readRSAKey fetches the public area of a key and checks that it is an
// unrestricted RSA key carrying the required usage attribute.
func (u *Utility) readRSAKey(handle Handle, usage ObjectAttributes) (*Public, Name, error) {
	public, name, _, err := u.tpm.ReadPublic(handle)
	if err != nil {
		return nil, nil, err
	}
	if public.Type != AlgorithmRSA {
		return nil, nil, xerrors.Errorf("not an RSA key: %w", ErrBadParameter)
	}
	if public.Attrs&AttrRestricted != 0 {
		return nil, nil, xerrors.Errorf("restricted keys cannot be used for general operations: %w", ErrBadParameter)
	}
	if public.Attrs&usage == 0 {
		return nil, nil, xerrors.Errorf("key does not allow the requested usage: %w", ErrBadParameter)
	}
	return public, name, nil
}

// Sign signs the supplied digest with the given key and returns the raw
// signature. A null scheme selects RSASSA; a null hash algorithm is
// inferred from the digest length.
func (u *Utility) Sign(keyHandle Handle, scheme, hashAlg AlgorithmId, digest []byte, delegate AuthorizationDelegate) ([]byte, error) {
	if delegate == nil {
		return nil, xerrors.Errorf("cannot sign: %w", ErrInvalidSession)
	}
	sigScheme, err := decideSignScheme(scheme, hashAlg, len(digest))
	if err != nil {
		return nil, err
	}
	_, name, err := u.readRSAKey(keyHandle, AttrSign)
	if err != nil {
		return nil, err
	}
	signature, err := u.tpm.Sign(HandleName{Handle: keyHandle, Name: name}, digest, sigScheme, NullTicket(), delegate)
	if err != nil {
		return nil, err
	}
	return signature.RSA, nil
}

// Verify checks a signature produced by Sign against the supplied digest.
func (u *Utility) Verify(keyHandle Handle, scheme, hashAlg AlgorithmId, digest, signature []byte, delegate AuthorizationDelegate) error {
	if delegate == nil {
		return xerrors.Errorf("cannot verify signature: %w", ErrInvalidSession)
	}
	sigScheme, err := decideSignScheme(scheme, hashAlg, len(digest))
	if err != nil {
		return err
	}
	_, name, err := u.readRSAKey(keyHandle, AttrSign)
	if err != nil {
		return err
	}
	sig := &Signature{SigAlg: sigScheme.Scheme, HashAlg: sigScheme.HashAlg, RSA: signature}
	_, err = u.tpm.VerifySignature(HandleName{Handle: keyHandle, Name: name}, digest, sig, delegate)
	return err
}

// AsymmetricEncrypt encrypts plaintext with the given key. A null scheme
// selects OAEP with SHA-256.
func (u *Utility) AsymmetricEncrypt(keyHandle Handle, scheme, hashAlg AlgorithmId, plaintext []byte, delegate AuthorizationDelegate) ([]byte, error) {
	if delegate == nil {
		return nil, xerrors.Errorf("cannot encrypt: %w", ErrInvalidSession)
	}
	rsaScheme, err := decideEncryptScheme(scheme, hashAlg)
	if err != nil {
		return nil, err
	}
	_, name, err := u.readRSAKey(keyHandle, AttrDecrypt)
	if err != nil {
		return nil, err
	}
	out, err := u.tpm.RSAEncrypt(HandleName{Handle: keyHandle, Name: name}, plaintext, rsaScheme, oaepLabel(), delegate)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AsymmetricDecrypt decrypts ciphertext produced by AsymmetricEncrypt.
func (u *Utility) AsymmetricDecrypt(keyHandle Handle, scheme, hashAlg AlgorithmId, ciphertext []byte, delegate AuthorizationDelegate) ([]byte, error) {
	if delegate == nil {
		return nil, xerrors.Errorf("cannot decrypt: %w", ErrInvalidSession)
	}
	rsaScheme, err := decideEncryptScheme(scheme, hashAlg)
	if err != nil {
		return nil, err
	}
	_, name, err := u.readRSAKey(keyHandle, AttrDecrypt)
	if err != nil {
		return nil, err
	}
	out, err := u.tpm.RSADecrypt(HandleName{Handle: keyHandle, Name: name}, ciphertext, rsaScheme, oaepLabel(), delegate)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// oaepLabel returns the OAEP label used by this package. The label is
// zero-terminated on the wire.
func oaepLabel() Data {
	return Data(append([]byte(oaepCryptLabel), 0))
}

// CreateRSAKeyPair creates an RSA key under the storage root key and
// returns its serialized key blob. A zero exponent selects the default
// F4 exponent. When policyDigest is supplied it is bound into the key; with
// useOnlyPolicyAuthorization set the policy becomes the only authorization
// path.
func (u *Utility) CreateRSAKeyPair(usage KeyUsage, modulusBits uint16, exponent uint32, password, policyDigest []byte, useOnlyPolicyAuthorization bool, delegate AuthorizationDelegate) ([]byte, error) {
	if delegate == nil {
		return nil, xerrors.Errorf("cannot create key: %w", ErrInvalidSession)
	}
	srk, err := u.storageRootKeyName()
	if err != nil {
		return nil, err
	}
	template := RSAKeyTemplate(usage, modulusBits, exponent, policyDigest, useOnlyPolicyAuthorization)
	sensitive := &SensitiveCreate{UserAuth: password}
	outPrivate, outPublic, err := u.tpm.Create(srk, sensitive, template, nil, nil, delegate)
	if err != nil {
		return nil, err
	}
	return serializeKeyBlob(outPublic, outPrivate)
}

// CreateAndLoadRSAKey creates a 2048-bit RSA key with the default exponent
// and loads it. The caller owns the returned handle; the serialized key
// blob is returned alongside it.
func (u *Utility) CreateAndLoadRSAKey(usage KeyUsage, password []byte, delegate AuthorizationDelegate) (*ScopedKeyHandle, []byte, error) {
	blob, err := u.CreateRSAKeyPair(usage, 2048, 0, password, nil, false, delegate)
	if err != nil {
		return nil, nil, err
	}
	key, err := u.LoadKey(blob, delegate)
	if err != nil {
		return nil, nil, err
	}
	return key, blob, nil
}

// ImportRSAKey wraps an externally generated RSA private key for the
// storage root key and returns the serialized key blob of the imported
// object. The modulus and one prime define the key; the sensitive area is
// protected with an ephemeral AES-256-CFB inner wrapper whose key travels
// in the import command.
func (u *Utility) ImportRSAKey(usage KeyUsage, modulus []byte, exponent uint32, prime, password []byte, delegate AuthorizationDelegate) ([]byte, error) {
	if delegate == nil {
		return nil, xerrors.Errorf("cannot import key: %w", ErrInvalidSession)
	}
	srk, err := u.storageRootKeyName()
	if err != nil {
		return nil, err
	}

	public := RSAKeyTemplate(usage, uint16(len(modulus)*8), exponent, nil, false)
	// An imported object cannot claim device-resident origin.
	public.Attrs &^= AttrFixedTPM | AttrFixedParent | AttrSensitiveDataOrigin
	public.UniqueRSA = modulus
	objectName, err := ObjectName(public)
	if err != nil {
		return nil, xerrors.Errorf("cannot compute object name: %w", err)
	}

	sensitive := &Sensitive{Type: AlgorithmRSA, AuthValue: password, RSA: prime}
	var sensitiveBuf bytes.Buffer
	if err := sensitive.TPMMarshal(&sensitiveBuf); err != nil {
		return nil, err
	}

	hashAlg, _ := sessionHashAlgorithm.Hash()
	h := hashAlg.New()
	h.Write(sensitiveBuf.Bytes())
	h.Write(objectName)
	integrity := Digest(h.Sum(nil))

	var duplicateBuf bytes.Buffer
	if err := integrity.TPMMarshal(&duplicateBuf); err != nil {
		return nil, err
	}
	duplicateBuf.Write(sensitiveBuf.Bytes())
	duplicate := duplicateBuf.Bytes()

	encryptionKey := make([]byte, 32)
	if _, err := rand.Read(encryptionKey); err != nil {
		return nil, xerrors.Errorf("cannot generate inner wrapper key: %w", err)
	}
	iv := make([]byte, 16)
	if err := CryptSymmetricEncrypt(encryptionKey, iv, duplicate); err != nil {
		return nil, err
	}

	outPrivate, err := u.tpm.Import(srk, encryptionKey, public, duplicate, nil, SymDefAES256CFB(), delegate)
	if err != nil {
		return nil, err
	}
	return serializeKeyBlob(public, outPrivate)
}

// LoadKey loads a key blob produced by CreateRSAKeyPair, ImportRSAKey or
// ChangeKeyAuthorizationData under the storage root key. The caller owns
// the returned handle.
func (u *Utility) LoadKey(keyBlob []byte, delegate AuthorizationDelegate) (*ScopedKeyHandle, error) {
	if delegate == nil {
		return nil, xerrors.Errorf("cannot load key: %w", ErrInvalidSession)
	}
	public, private, err := parseKeyBlob(keyBlob)
	if err != nil {
		return nil, err
	}
	srk, err := u.storageRootKeyName()
	if err != nil {
		return nil, err
	}
	handle, name, err := u.tpm.Load(srk, private, public, delegate)
	if err != nil {
		return nil, err
	}
	return NewScopedKeyHandle(u.tpm, handle, name), nil
}

// ChangeKeyAuthorizationData rewraps a loaded key with a new authorization
// value and returns the updated key blob. When the change runs over an
// HMAC session the new value must also be recorded with
// SetFutureAuthorizationValue so the response can be verified.
func (u *Utility) ChangeKeyAuthorizationData(keyHandle Handle, newPassword []byte, delegate AuthorizationDelegate) ([]byte, error) {
	if delegate == nil {
		return nil, xerrors.Errorf("cannot change key authorization: %w", ErrInvalidSession)
	}
	keyPublic, keyName, _, err := u.tpm.ReadPublic(keyHandle)
	if err != nil {
		return nil, xerrors.Errorf("cannot read public area of key: %w", err)
	}
	srk, err := u.storageRootKeyName()
	if err != nil {
		return nil, err
	}
	outPrivate, err := u.tpm.ObjectChangeAuth(HandleName{Handle: keyHandle, Name: keyName}, srk, newPassword, delegate)
	if err != nil {
		return nil, err
	}
	return serializeKeyBlob(keyPublic, outPrivate)
}

// GetKeyName returns the name of the entity behind the handle. Entities
// without a public area are named by their handle value.
func (u *Utility) GetKeyName(handle Handle) (Name, error) {
	switch handle.Type() {
	case HandleTypePCR, HandleTypePermanent, HandleTypeHMACSession, HandleTypePolicySession:
		return HandleName{Handle: handle}.EffectiveName(), nil
	}
	public, _, _, err := u.tpm.ReadPublic(handle)
	if err != nil {
		return nil, err
	}
	return ObjectName(public)
}

// GetKeyPublicArea returns the public area of a loaded or persistent key.
func (u *Utility) GetKeyPublicArea(handle Handle) (*Public, error) {
	public, _, _, err := u.tpm.ReadPublic(handle)
	if err != nil {
		return nil, err
	}
	return public, nil
}

func serializeKeyBlob(public *Public, private Private) ([]byte, error) {
	return tpmutil.Pack(public, &private)
}

func parseKeyBlob(keyBlob []byte) (*Public, Private, error) {
	public := &Public{}
	var private Private
	if _, err := tpmutil.Unpack(keyBlob, public, &private); err != nil {
		return nil, nil, xerrors.Errorf("cannot parse key blob: %w", ErrBadParameter)
	}
	return public, private, nil
}

func nvIndexHandle(index uint32) Handle {
	return HandleTypeNVIndexBase + Handle(index)
}

func checkNVIndex(index uint32) error {
	if index >= MaxNVIndex {
		return xerrors.Errorf("NV index %d out of range: %w", index, ErrBadParameter)
	}
	return nil
}

// DefineNVSpace allocates an NV space at the given logical index. The
// space is owner-writable, readable with its own authorization, and its
// size becomes immutable once write-locked.
func (u *Utility) DefineNVSpace(index, size uint32, delegate AuthorizationDelegate) error {
	if err := checkNVIndex(index); err != nil {
		return err
	}
	if size > MaxNVSize {
		return xerrors.Errorf("NV space of %d bytes exceeds the device limit: %w", size, ErrBadSize)
	}
	if delegate == nil {
		return xerrors.Errorf("cannot define NV space: %w", ErrInvalidSession)
	}
	public := &NVPublic{
		Index:    nvIndexHandle(index),
		NameAlg:  AlgorithmSHA256,
		Attrs:    AttrNVOwnerWrite | AttrNVWriteDefine | AttrNVAuthRead,
		DataSize: uint16(size),
	}
	if err := u.tpm.NVDefineSpace(HandleName{Handle: HandleOwner}, nil, public, delegate); err != nil {
		return err
	}
	u.mu.Lock()
	u.nvCache[index] = public
	u.mu.Unlock()
	return nil
}

// DestroyNVSpace deletes an NV space.
func (u *Utility) DestroyNVSpace(index uint32, delegate AuthorizationDelegate) error {
	if err := checkNVIndex(index); err != nil {
		return err
	}
	if delegate == nil {
		return xerrors.Errorf("cannot destroy NV space: %w", ErrInvalidSession)
	}
	name, err := u.GetNVSpaceName(index)
	if err != nil {
		return err
	}
	if err := u.tpm.NVUndefineSpace(HandleName{Handle: HandleOwner}, HandleName{Handle: nvIndexHandle(index), Name: name}, delegate); err != nil {
		return err
	}
	u.mu.Lock()
	delete(u.nvCache, index)
	u.mu.Unlock()
	return nil
}

// LockNVSpace write-locks an NV space until the next startup. The cached
// public area is updated so later operations compute the post-lock name.
func (u *Utility) LockNVSpace(index uint32, delegate AuthorizationDelegate) error {
	if err := checkNVIndex(index); err != nil {
		return err
	}
	if delegate == nil {
		return xerrors.Errorf("cannot lock NV space: %w", ErrInvalidSession)
	}
	name, err := u.GetNVSpaceName(index)
	if err != nil {
		return err
	}
	nv := HandleName{Handle: nvIndexHandle(index), Name: name}
	if err := u.tpm.NVWriteLock(nv, nv, delegate); err != nil {
		return err
	}
	u.mu.Lock()
	if public, ok := u.nvCache[index]; ok {
		public.Attrs |= AttrNVWriteLocked
	}
	u.mu.Unlock()
	return nil
}

// WriteNVSpace writes data into an NV space at the given offset using
// owner authorization. The cached public area is updated with the written
// attribute the first write sets.
func (u *Utility) WriteNVSpace(index uint32, offset uint16, data []byte, delegate AuthorizationDelegate) error {
	if err := checkNVIndex(index); err != nil {
		return err
	}
	if uint32(len(data)) > MaxNVSize {
		return xerrors.Errorf("write of %d bytes exceeds the device limit: %w", len(data), ErrBadSize)
	}
	if delegate == nil {
		return xerrors.Errorf("cannot write NV space: %w", ErrInvalidSession)
	}
	name, err := u.GetNVSpaceName(index)
	if err != nil {
		return err
	}
	if err := u.tpm.NVWrite(HandleName{Handle: HandleOwner}, HandleName{Handle: nvIndexHandle(index), Name: name}, data, offset, delegate); err != nil {
		return err
	}
	u.mu.Lock()
	if public, ok := u.nvCache[index]; ok {
		public.Attrs |= AttrNVWritten
	}
	u.mu.Unlock()
	return nil
}

// ReadNVSpace reads size bytes from an NV space at the given offset using
// the space's own authorization.
func (u *Utility) ReadNVSpace(index uint32, offset, size uint16, delegate AuthorizationDelegate) ([]byte, error) {
	if err := checkNVIndex(index); err != nil {
		return nil, err
	}
	if uint32(size) > MaxNVSize {
		return nil, xerrors.Errorf("read of %d bytes exceeds the device limit: %w", size, ErrBadSize)
	}
	if delegate == nil {
		return nil, xerrors.Errorf("cannot read NV space: %w", ErrInvalidSession)
	}
	name, err := u.GetNVSpaceName(index)
	if err != nil {
		return nil, err
	}
	nv := HandleName{Handle: nvIndexHandle(index), Name: name}
	data, err := u.tpm.NVRead(nv, nv, size, offset, delegate)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// GetNVSpaceName returns the name of an NV space, computed from its public
// area.
func (u *Utility) GetNVSpaceName(index uint32) (Name, error) {
	public, err := u.GetNVSpacePublicArea(index)
	if err != nil {
		return nil, err
	}
	return NVSpaceName(public)
}

// GetNVSpacePublicArea returns the public area of an NV space. Public
// areas are cached; define, write and lock keep the cached copy current,
// so a space is only read back from the device once.
func (u *Utility) GetNVSpacePublicArea(index uint32) (*NVPublic, error) {
	if err := checkNVIndex(index); err != nil {
		return nil, err
	}
	u.mu.Lock()
	public, ok := u.nvCache[index]
	u.mu.Unlock()
	if ok {
		return public, nil
	}
	public, _, err := u.tpm.NVReadPublic(nvIndexHandle(index))
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.nvCache[index] = public
	u.mu.Unlock()
	return public, nil
}
