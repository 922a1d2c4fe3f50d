// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"encoding/binary"

	"github.com/google/go-tpm/tpmutil"
	"golang.org/x/xerrors"
)

// TPM is the typed command boundary that sessions and Utility are built on.
// Each method issues exactly one command; an AuthorizationDelegate argument
// authorizes the handles the command operates on. TPMContext is the concrete
// implementation; tests substitute fakes.
type TPM interface {
	// Section 9 - Start-up
	Startup(startupType StartupType) error
	Shutdown(shutdownType StartupType) error

	// Section 10 - Testing
	SelfTest(fullTest bool) error
	GetTestResult() (outData MaxBuffer, testResult ResponseCode, err error)

	// Section 11 - Session Commands
	StartAuthSession(tpmKey, bind HandleName, nonceCaller Nonce, encryptedSalt EncryptedSecret, sessionType SessionType, symmetric *SymDef, authHash AlgorithmId) (handle Handle, nonceTPM Nonce, err error)

	// Section 12 - Object Commands
	Create(parent HandleName, inSensitive *SensitiveCreate, inPublic *Public, outsideInfo Data, creationPCR PCRSelectionList, delegate AuthorizationDelegate) (outPrivate Private, outPublic *Public, err error)
	Load(parent HandleName, inPrivate Private, inPublic *Public, delegate AuthorizationDelegate) (handle Handle, name Name, err error)
	ReadPublic(object Handle) (outPublic *Public, name, qualifiedName Name, err error)
	ObjectChangeAuth(object, parent HandleName, newAuth Auth, delegate AuthorizationDelegate) (outPrivate Private, err error)

	// Section 13 - Duplication Commands
	Import(parent HandleName, encryptionKey Data, objectPublic *Public, duplicate Private, inSymSeed EncryptedSecret, symmetricAlg *SymDefObject, delegate AuthorizationDelegate) (outPrivate Private, err error)

	// Section 14 - Asymmetric Primitives
	RSAEncrypt(key HandleName, message PublicKeyRSA, scheme *RSAScheme, label Data, delegate AuthorizationDelegate) (outData PublicKeyRSA, err error)
	RSADecrypt(key HandleName, cipherText PublicKeyRSA, scheme *RSAScheme, label Data, delegate AuthorizationDelegate) (message PublicKeyRSA, err error)

	// Section 16 - Random Number Generator
	GetRandom(bytesRequested uint16, delegate AuthorizationDelegate) (randomBytes Digest, err error)
	StirRandom(inData SensitiveData, delegate AuthorizationDelegate) error

	// Section 20 - Signing and Signature Verification
	Sign(key HandleName, digest Digest, scheme *SigScheme, validation *TkHashcheck, delegate AuthorizationDelegate) (signature *Signature, err error)
	VerifySignature(key HandleName, digest Digest, signature *Signature, delegate AuthorizationDelegate) (validation *TkVerified, err error)

	// Section 22 - Integrity Collection (PCR)
	PCRExtend(pcr HandleName, digests DigestValues, delegate AuthorizationDelegate) error
	PCRRead(pcrSelection PCRSelectionList) (pcrUpdateCounter uint32, pcrSelectionOut PCRSelectionList, pcrValues DigestList, err error)
	PCRAllocate(authHandle HandleName, pcrAllocation PCRSelectionList, delegate AuthorizationDelegate) (allocationSuccess bool, err error)

	// Section 23 - Enhanced Authorization (EA) Commands
	PolicyOR(policySession Handle, digests DigestList) error
	PolicyPCR(policySession Handle, pcrDigest Digest, pcrs PCRSelectionList) error
	PolicyCommandCode(policySession Handle, code CommandCode) error
	PolicyAuthValue(policySession Handle) error
	PolicyGetDigest(policySession Handle) (policyDigest Digest, err error)
	PolicyRestart(policySession Handle) error

	// Section 24 - Hierarchy Commands
	CreatePrimary(primaryObject HandleName, inSensitive *SensitiveCreate, inPublic *Public, outsideInfo Data, creationPCR PCRSelectionList, delegate AuthorizationDelegate) (handle Handle, outPublic *Public, err error)
	HierarchyChangeAuth(authHandle HandleName, newAuth Auth, delegate AuthorizationDelegate) error
	Clear(authHandle HandleName, delegate AuthorizationDelegate) error

	// Section 28 - Context Management
	FlushContext(flushHandle Handle) error
	EvictControl(auth, object HandleName, persistentHandle Handle, delegate AuthorizationDelegate) error

	// Section 30 - Capability Commands
	GetCapability(capability Capability, property uint32, propertyCount uint32) (moreData bool, properties []TaggedProperty, err error)

	// Section 31 - Non-volatile Storage
	NVDefineSpace(authHandle HandleName, auth Auth, publicInfo *NVPublic, delegate AuthorizationDelegate) error
	NVUndefineSpace(authHandle, nvIndex HandleName, delegate AuthorizationDelegate) error
	NVReadPublic(nvIndex Handle) (nvPublic *NVPublic, name Name, err error)
	NVWrite(authHandle, nvIndex HandleName, data MaxNVBuffer, offset uint16, delegate AuthorizationDelegate) error
	NVWriteLock(authHandle, nvIndex HandleName, delegate AuthorizationDelegate) error
	NVRead(authHandle, nvIndex HandleName, size, offset uint16, delegate AuthorizationDelegate) (data MaxNVBuffer, err error)
}

// TPMContext executes typed commands against a Transport. It is not safe
// for concurrent use.
type TPMContext struct {
	transport      Transport
	maxSubmissions uint
}

// NewTPMContext returns a TPMContext that submits commands through the
// supplied transport. The caller retains ownership of the transport and is
// responsible for closing it.
func NewTPMContext(transport Transport) *TPMContext {
	return &TPMContext{transport: transport, maxSubmissions: 3}
}

// SetMaxSubmissions sets the maximum number of times a command is submitted
// when the device responds with a retryable warning.
func (t *TPMContext) SetMaxSubmissions(max uint) {
	t.maxSubmissions = max
}

// commandSpec describes the parts of a command that the generic execution
// path can't derive from the parameter values: the handle area with the
// names entering the parameter hash, the response handle destinations, and
// whether the first command/response parameter is a TPM2B that session
// encryption applies to.
type commandSpec struct {
	handles     []HandleName
	params      []interface{}
	respHandles []interface{}
	respParams  []interface{}

	cmdFirstParamSized  bool
	respFirstParamSized bool
}

const headerSize = 10

func (t *TPMContext) buildCommand(commandCode CommandCode, delegate AuthorizationDelegate, spec *commandSpec) ([]byte, error) {
	cpBytes, err := tpmutil.Pack(spec.params...)
	if err != nil {
		return nil, xerrors.Errorf("cannot marshal parameters: %w", err)
	}

	if delegate != nil && spec.cmdFirstParamSized {
		first, rest, err := firstParameter(cpBytes)
		if err != nil {
			return nil, err
		}
		encrypted, err := delegate.EncryptCommandParameter(first)
		if err != nil {
			return nil, xerrors.Errorf("cannot encrypt first command parameter: %w", err)
		}
		cpBytes = replaceFirstParameter(encrypted, rest)
	}

	tag := TagNoSessions
	var authArea []byte
	if delegate != nil {
		tag = TagSessions
		hashAlg, _ := sessionHashAlgorithm.Hash()
		cpHash := ComputeCpHash(hashAlg, commandCode, spec.handles, cpBytes)
		authArea, err = delegate.GetCommandAuthorization(cpHash, spec.cmdFirstParamSized, spec.respFirstParamSized)
		if err != nil {
			return nil, xerrors.Errorf("cannot build authorization: %w", err)
		}
	}

	var body []byte
	for _, h := range spec.handles {
		body = append(body, byte(h.Handle>>24), byte(h.Handle>>16), byte(h.Handle>>8), byte(h.Handle))
	}
	if delegate != nil {
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(authArea)))
		body = append(body, size[:]...)
		body = append(body, authArea...)
	}
	body = append(body, cpBytes...)

	packet := make([]byte, headerSize, headerSize+len(body))
	binary.BigEndian.PutUint16(packet[0:], uint16(tag))
	binary.BigEndian.PutUint32(packet[2:], uint32(headerSize+len(body)))
	binary.BigEndian.PutUint32(packet[6:], uint32(commandCode))
	return append(packet, body...), nil
}

func (t *TPMContext) submit(packet []byte) ([]byte, error) {
	if _, err := t.transport.Write(packet); err != nil {
		return nil, &TransportError{"write", err}
	}
	resp := make([]byte, maxResponseSize)
	n, err := t.transport.Read(resp)
	if err != nil {
		return nil, &TransportError{"read", err}
	}
	return resp[:n], nil
}

// RunCommand executes a single command: it marshals the handle and parameter
// areas, attaches the authorization produced by the delegate, submits the
// packet (retrying a bounded number of times while the device reports a
// retryable warning), and validates and unmarshals the response, including
// the response authorization HMAC.
func (t *TPMContext) RunCommand(commandCode CommandCode, delegate AuthorizationDelegate, spec *commandSpec) error {
	packet, err := t.buildCommand(commandCode, delegate, spec)
	if err != nil {
		return err
	}

	var resp []byte
	for tries := uint(1); ; tries++ {
		resp, err = t.submit(packet)
		if err != nil {
			return err
		}
		if len(resp) < headerSize {
			return &InvalidResponseError{commandCode, "response shorter than the response header"}
		}
		rc := ResponseCode(binary.BigEndian.Uint32(resp[6:]))
		err = DecodeResponseCode(commandCode, rc)
		if err == nil {
			break
		}
		if tries >= t.maxSubmissions {
			return err
		}
		if e, ok := err.(*TPMWarning); !ok || !(e.Code == WarningYielded || e.Code == WarningTesting || e.Code == WarningRetry) {
			return err
		}
	}

	respTag := StructTag(binary.BigEndian.Uint16(resp[0:]))
	respSize := binary.BigEndian.Uint32(resp[2:])
	rc := ResponseCode(binary.BigEndian.Uint32(resp[6:]))
	if int(respSize) != len(resp) {
		return &InvalidResponseError{commandCode, "inconsistent responseSize field"}
	}

	body := resp[headerSize:]
	for _, h := range spec.respHandles {
		n, err := tpmutil.Unpack(body, h)
		if err != nil {
			return &InvalidResponseError{commandCode, "cannot unmarshal response handle area"}
		}
		body = body[n:]
	}

	var rpBytes, authArea []byte
	switch {
	case delegate != nil && respTag == TagSessions:
		if len(body) < 4 {
			return &InvalidResponseError{commandCode, "response parameter area truncated"}
		}
		paramSize := binary.BigEndian.Uint32(body)
		if int(paramSize) > len(body)-4 {
			return &InvalidResponseError{commandCode, "inconsistent parameterSize field"}
		}
		rpBytes = body[4 : 4+paramSize]
		authArea = body[4+paramSize:]
	case delegate != nil:
		return &InvalidResponseError{commandCode, "missing response authorization area"}
	case respTag == TagNoSessions:
		rpBytes = body
	default:
		return &InvalidResponseError{commandCode, "unexpected response tag"}
	}

	if delegate != nil {
		hashAlg, _ := sessionHashAlgorithm.Hash()
		rpHash := ComputeRpHash(hashAlg, rc, commandCode, rpBytes)
		if !delegate.CheckResponseAuthorization(rpHash, authArea) {
			return &InvalidAuthResponseError{commandCode, "response HMAC verification failed"}
		}
		if spec.respFirstParamSized && len(rpBytes) > 0 {
			first, rest, err := firstParameter(rpBytes)
			if err != nil {
				return &InvalidResponseError{commandCode, "malformed first response parameter"}
			}
			decrypted, err := delegate.DecryptResponseParameter(first)
			if err != nil {
				return &InvalidResponseError{commandCode, "cannot decrypt first response parameter"}
			}
			rpBytes = replaceFirstParameter(decrypted, rest)
		}
	}

	if len(spec.respParams) > 0 {
		if _, err := tpmutil.Unpack(rpBytes, spec.respParams...); err != nil {
			return &InvalidResponseError{commandCode, "cannot unmarshal response parameters"}
		}
	}
	return nil
}
