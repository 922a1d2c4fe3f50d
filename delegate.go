// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"errors"

	"github.com/google/go-tpm/tpmutil"
	"golang.org/x/xerrors"
)

// authCommand corresponds to the TPMS_AUTH_COMMAND type.
type authCommand struct {
	SessionHandle Handle
	Nonce         Nonce
	SessionAttrs  SessionAttributes
	HMAC          Auth
}

// authResponse corresponds to the TPMS_AUTH_RESPONSE type.
type authResponse struct {
	Nonce        Nonce
	SessionAttrs SessionAttributes
	HMAC         Auth
}

// AuthorizationDelegate supplies the authorization area for a single command
// and validates the authorization area of its response. When session
// parameter encryption is enabled it also encrypts the first command
// parameter and decrypts the first response parameter; both operate on the
// size-prefixed wire form of the parameter and leave it unchanged when
// encryption is not in use.
//
// A delegate is bound to the live nonce state of exactly one session and
// must not be used after that session is closed, or concurrently by multiple
// in-flight commands.
type AuthorizationDelegate interface {
	// GetCommandAuthorization returns a serialized TPMS_AUTH_COMMAND for a
	// command whose parameter digest is commandHash. The flags indicate
	// whether the command's first parameter was encrypted and whether the
	// response's first parameter will be.
	GetCommandAuthorization(commandHash []byte, commandParameterEncrypted, responseParameterEncrypted bool) ([]byte, error)

	// CheckResponseAuthorization verifies a serialized TPMS_AUTH_RESPONSE
	// against the response parameter digest, rolling any session nonce
	// state forward.
	CheckResponseAuthorization(responseHash, authorization []byte) bool

	// EncryptCommandParameter encrypts the payload of the size-prefixed
	// first command parameter.
	EncryptCommandParameter(parameter []byte) ([]byte, error)

	// DecryptResponseParameter decrypts the payload of the size-prefixed
	// first response parameter.
	DecryptResponseParameter(parameter []byte) ([]byte, error)
}

// PasswordAuthorizationDelegate authorizes commands with a plaintext
// password using the permanent password session.
type PasswordAuthorizationDelegate struct {
	password Auth
}

// NewPasswordAuthorizationDelegate returns a delegate that authorizes
// commands with the supplied password in the clear.
func NewPasswordAuthorizationDelegate(password []byte) *PasswordAuthorizationDelegate {
	return &PasswordAuthorizationDelegate{password: Auth(password)}
}

func (d *PasswordAuthorizationDelegate) GetCommandAuthorization(commandHash []byte, commandParameterEncrypted, responseParameterEncrypted bool) ([]byte, error) {
	auth := authCommand{
		SessionHandle: HandlePW,
		SessionAttrs:  AttrContinueSession,
		HMAC:          d.password,
	}
	return tpmutil.Pack(auth)
}

func (d *PasswordAuthorizationDelegate) CheckResponseAuthorization(responseHash, authorization []byte) bool {
	var auth authResponse
	if _, err := tpmutil.Unpack(authorization, &auth); err != nil {
		return false
	}
	// A password session response carries no nonce and no HMAC.
	return len(auth.Nonce) == 0 && len(auth.HMAC) == 0
}

func (d *PasswordAuthorizationDelegate) EncryptCommandParameter(parameter []byte) ([]byte, error) {
	return parameter, nil
}

func (d *PasswordAuthorizationDelegate) DecryptResponseParameter(parameter []byte) ([]byte, error) {
	return parameter, nil
}

// HMACAuthorizationDelegate authorizes commands through a started session,
// proving knowledge of the bound entity's authorization value via an HMAC
// over the command parameter digest and the session's nonce pair, without
// transmitting the value itself. It is used for both HMAC and policy
// sessions.
type HMACAuthorizationDelegate struct {
	sessionHandle     Handle
	nonceCaller       Nonce
	nonceTPM          Nonce
	sessionKey        []byte
	entityAuth        []byte
	futureAuth        []byte
	encryptionEnabled bool
	nonceGenerated    bool
}

// NewHMACAuthorizationDelegate returns an empty delegate. It cannot
// authorize anything until InitSession is called by a session manager.
func NewHMACAuthorizationDelegate() *HMACAuthorizationDelegate {
	return &HMACAuthorizationDelegate{}
}

// InitSession binds the delegate to a started session. The session key is
// derived from the bind entity's authorization value and the session salt;
// it is empty for sessions that are neither bound nor salted.
func (d *HMACAuthorizationDelegate) InitSession(handle Handle, tpmNonce, callerNonce Nonce, salt, bindAuth []byte, enableParameterEncryption bool) error {
	hashAlg, _ := sessionHashAlgorithm.Hash()
	if len(tpmNonce) != hashAlg.Size() || len(callerNonce) != hashAlg.Size() {
		return errors.New("invalid nonce length")
	}
	d.sessionHandle = handle
	d.nonceTPM = append(Nonce(nil), tpmNonce...)
	d.nonceCaller = append(Nonce(nil), callerNonce...)
	d.encryptionEnabled = enableParameterEncryption
	d.nonceGenerated = false

	if len(salt) == 0 && len(bindAuth) == 0 {
		d.sessionKey = nil
		return nil
	}
	key := make([]byte, 0, len(bindAuth)+len(salt))
	key = append(key, bindAuth...)
	key = append(key, salt...)
	d.sessionKey = KDFa(hashAlg, key, kdfLabelATH, d.nonceTPM, d.nonceCaller, hashAlg.Size()*8)
	return nil
}

// SessionHandle returns the handle of the session the delegate is bound to.
func (d *HMACAuthorizationDelegate) SessionHandle() Handle {
	return d.sessionHandle
}

// TPMNonce returns the most recent nonce received from the device.
func (d *HMACAuthorizationDelegate) TPMNonce() Nonce {
	return d.nonceTPM
}

// SetEntityAuthorizationValue records the authorization value of the entity
// being authorized. The value is only ever used as HMAC key material.
func (d *HMACAuthorizationDelegate) SetEntityAuthorizationValue(value []byte) {
	d.entityAuth = append([]byte(nil), value...)
}

// SetFutureAuthorizationValue records the authorization value an in-flight
// command is about to assign to the authorized entity. The device computes
// the response HMAC of such commands with the new value, so verification
// needs it before it takes effect. It is consumed by the next response.
func (d *HMACAuthorizationDelegate) SetFutureAuthorizationValue(value []byte) {
	d.futureAuth = append([]byte(nil), value...)
}

func (d *HMACAuthorizationDelegate) regenerateCallerNonce() error {
	if d.nonceGenerated {
		return nil
	}
	nonce := make(Nonce, len(d.nonceCaller))
	if _, err := rand.Read(nonce); err != nil {
		return xerrors.Errorf("cannot generate caller nonce: %w", err)
	}
	d.nonceCaller = nonce
	d.nonceGenerated = true
	return nil
}

func (d *HMACAuthorizationDelegate) GetCommandAuthorization(commandHash []byte, commandParameterEncrypted, responseParameterEncrypted bool) ([]byte, error) {
	if d.sessionHandle == 0 {
		return nil, errors.New("delegate is not bound to a session")
	}
	if err := d.regenerateCallerNonce(); err != nil {
		return nil, err
	}
	// The next command must roll the caller nonce again.
	d.nonceGenerated = false

	attrs := AttrContinueSession
	if d.encryptionEnabled {
		if commandParameterEncrypted {
			attrs |= AttrCommandEncrypt
		}
		if responseParameterEncrypted {
			attrs |= AttrResponseEncrypt
		}
	}

	auth := authCommand{
		SessionHandle: d.sessionHandle,
		Nonce:         d.nonceCaller,
		SessionAttrs:  attrs,
		HMAC:          d.computeHMAC(commandHash, d.nonceCaller, d.nonceTPM, attrs, d.entityAuth),
	}
	return tpmutil.Pack(auth)
}

func (d *HMACAuthorizationDelegate) CheckResponseAuthorization(responseHash, authorization []byte) bool {
	var auth authResponse
	if _, err := tpmutil.Unpack(authorization, &auth); err != nil {
		return false
	}
	hashAlg, _ := sessionHashAlgorithm.Hash()
	if len(auth.Nonce) != hashAlg.Size() {
		return false
	}
	d.nonceTPM = auth.Nonce

	authValue := d.entityAuth
	if len(d.futureAuth) > 0 {
		// The device computed this response HMAC with the authorization
		// value the command just assigned.
		authValue = d.futureAuth
		d.futureAuth = nil
	}
	expected := d.computeHMAC(responseHash, d.nonceCaller, d.nonceTPM, auth.SessionAttrs, authValue)
	return hmac.Equal(expected, auth.HMAC)
}

func (d *HMACAuthorizationDelegate) computeHMAC(digest []byte, nonceNewer, nonceOlder Nonce, attrs SessionAttributes, authValue []byte) Auth {
	hashAlg, _ := sessionHashAlgorithm.Hash()
	key := make([]byte, 0, len(d.sessionKey)+len(authValue))
	key = append(key, d.sessionKey...)
	key = append(key, authValue...)

	h := hmac.New(hashAlg.New, key)
	h.Write(digest)
	h.Write(nonceNewer)
	h.Write(nonceOlder)
	h.Write([]byte{byte(attrs)})
	return h.Sum(nil)
}

// deriveEncryptionKey produces the AES key and CFB IV for parameter
// encryption from the session value and the current nonce pair. contextU is
// the "newer" nonce: the caller nonce for commands and the TPM nonce for
// responses.
func (d *HMACAuthorizationDelegate) deriveEncryptionKey(contextU, contextV Nonce) (key, iv []byte) {
	hashAlg, _ := sessionHashAlgorithm.Hash()
	sessionValue := make([]byte, 0, len(d.sessionKey)+len(d.entityAuth))
	sessionValue = append(sessionValue, d.sessionKey...)
	sessionValue = append(sessionValue, d.entityAuth...)

	const aesKeyBits = 256
	out := KDFa(hashAlg, sessionValue, kdfLabelCFB, contextU, contextV, aesKeyBits+128)
	return out[:aesKeyBits/8], out[aesKeyBits/8:]
}

func (d *HMACAuthorizationDelegate) EncryptCommandParameter(parameter []byte) ([]byte, error) {
	if !d.encryptionEnabled {
		return parameter, nil
	}
	if len(parameter) < 2 {
		return nil, errors.New("first command parameter is not size prefixed")
	}
	if err := d.regenerateCallerNonce(); err != nil {
		return nil, err
	}
	key, iv := d.deriveEncryptionKey(d.nonceCaller, d.nonceTPM)
	out := append([]byte(nil), parameter...)
	if err := CryptSymmetricEncrypt(key, iv, out[2:]); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *HMACAuthorizationDelegate) DecryptResponseParameter(parameter []byte) ([]byte, error) {
	if !d.encryptionEnabled {
		return parameter, nil
	}
	if len(parameter) < 2 {
		return nil, errors.New("first response parameter is not size prefixed")
	}
	key, iv := d.deriveEncryptionKey(d.nonceTPM, d.nonceCaller)
	out := append([]byte(nil), parameter...)
	if err := CryptSymmetricDecrypt(key, iv, out[2:]); err != nil {
		return nil, err
	}
	return out, nil
}

// firstParameter extracts the size-prefixed first parameter from a marshaled
// parameter area.
func firstParameter(paramBytes []byte) ([]byte, []byte, error) {
	if len(paramBytes) < 2 {
		return nil, nil, errors.New("parameter area too short")
	}
	size := int(paramBytes[0])<<8 | int(paramBytes[1])
	if len(paramBytes) < 2+size {
		return nil, nil, errors.New("first parameter extends beyond parameter area")
	}
	return paramBytes[:2+size], paramBytes[2+size:], nil
}

// replaceFirstParameter substitutes the size-prefixed first parameter of a
// marshaled parameter area.
func replaceFirstParameter(first, rest []byte) []byte {
	var buf bytes.Buffer
	buf.Write(first)
	buf.Write(rest)
	return buf.Bytes()
}
