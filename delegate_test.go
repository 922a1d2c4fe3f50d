// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2_test

import (
	"crypto"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/google/go-tpm/tpmutil"

	. "github.com/Citrus-CAF/system-tpm"

	. "gopkg.in/check.v1"
)

type delegateSuite struct{}

var _ = Suite(&delegateSuite{})

type authCommandArea struct {
	SessionHandle Handle
	Nonce         Nonce
	SessionAttrs  SessionAttributes
	HMAC          Auth
}

type authResponseArea struct {
	Nonce        Nonce
	SessionAttrs SessionAttributes
	HMAC         Auth
}

func parseAuthCommand(c *C, data []byte) *authCommandArea {
	var auth authCommandArea
	n, err := tpmutil.Unpack(data, &auth)
	c.Assert(err, IsNil)
	c.Assert(n, Equals, len(data))
	return &auth
}

func packAuthResponse(c *C, auth *authResponseArea) []byte {
	data, err := tpmutil.Pack(*auth)
	c.Assert(err, IsNil)
	return data
}

func testNonce(fill byte) Nonce {
	nonce := make(Nonce, 32)
	for i := range nonce {
		nonce[i] = fill
	}
	return nonce
}

func (s *delegateSuite) TestPasswordCommandAuthorization(c *C) {
	d := NewPasswordAuthorizationDelegate([]byte("secret"))

	data, err := d.GetCommandAuthorization(make([]byte, 32), false, false)
	c.Assert(err, IsNil)

	expected := []byte{
		0x40, 0x00, 0x00, 0x09, // TPM_RS_PW
		0x00, 0x00, // empty nonce
		0x01,       // continueSession
		0x00, 0x06, 's', 'e', 'c', 'r', 'e', 't'}
	c.Check(data, DeepEquals, expected)
}

func (s *delegateSuite) TestPasswordResponseAuthorization(c *C) {
	d := NewPasswordAuthorizationDelegate([]byte("secret"))
	hash := make([]byte, 32)

	c.Check(d.CheckResponseAuthorization(hash, packAuthResponse(c, &authResponseArea{
		SessionAttrs: AttrContinueSession})), Equals, true)
	c.Check(d.CheckResponseAuthorization(hash, packAuthResponse(c, &authResponseArea{
		SessionAttrs: AttrContinueSession,
		HMAC:         Auth{1, 2, 3}})), Equals, false)
	c.Check(d.CheckResponseAuthorization(hash, packAuthResponse(c, &authResponseArea{
		Nonce:        testNonce(0xff),
		SessionAttrs: AttrContinueSession})), Equals, false)
	c.Check(d.CheckResponseAuthorization(hash, []byte{0x00}), Equals, false)
}

func (s *delegateSuite) TestInitSessionRejectsBadNonces(c *C) {
	d := NewHMACAuthorizationDelegate()
	c.Check(d.InitSession(0x02000000, testNonce(1)[:16], testNonce(2), nil, nil, false),
		ErrorMatches, "invalid nonce length")
	c.Check(d.InitSession(0x02000000, testNonce(1), nil, nil, nil, false),
		ErrorMatches, "invalid nonce length")
}

func (s *delegateSuite) TestCommandAuthorizationRequiresSession(c *C) {
	d := NewHMACAuthorizationDelegate()
	_, err := d.GetCommandAuthorization(make([]byte, 32), false, false)
	c.Check(err, ErrorMatches, "delegate is not bound to a session")
}

func (s *delegateSuite) TestHMACCommandAuthorization(c *C) {
	tpmNonce := testNonce(0xa5)
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, tpmNonce, testNonce(0x5a), nil, nil, false), IsNil)
	d.SetEntityAuthorizationValue([]byte("entity auth"))

	commandHash := sha256.Sum256([]byte("command parameters"))
	data, err := d.GetCommandAuthorization(commandHash[:], true, true)
	c.Assert(err, IsNil)

	auth := parseAuthCommand(c, data)
	c.Check(auth.SessionHandle, Equals, Handle(0x02000001))
	c.Assert(auth.Nonce, HasLen, 32)
	// Parameter encryption is disabled, so the encrypt attributes must not
	// be set even though the command requested them.
	c.Check(auth.SessionAttrs, Equals, AttrContinueSession)

	h := hmac.New(sha256.New, []byte("entity auth"))
	h.Write(commandHash[:])
	h.Write(auth.Nonce)
	h.Write(tpmNonce)
	h.Write([]byte{byte(AttrContinueSession)})
	c.Check([]byte(auth.HMAC), DeepEquals, h.Sum(nil))
}

func (s *delegateSuite) TestHMACCommandAuthorizationEncryptAttrs(c *C) {
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, testNonce(1), testNonce(2), nil, nil, true), IsNil)

	data, err := d.GetCommandAuthorization(make([]byte, 32), true, true)
	c.Assert(err, IsNil)
	c.Check(parseAuthCommand(c, data).SessionAttrs, Equals,
		AttrContinueSession|AttrCommandEncrypt|AttrResponseEncrypt)

	data, err = d.GetCommandAuthorization(make([]byte, 32), true, false)
	c.Assert(err, IsNil)
	c.Check(parseAuthCommand(c, data).SessionAttrs, Equals,
		AttrContinueSession|AttrCommandEncrypt)

	data, err = d.GetCommandAuthorization(make([]byte, 32), false, false)
	c.Assert(err, IsNil)
	c.Check(parseAuthCommand(c, data).SessionAttrs, Equals, AttrContinueSession)
}

func (s *delegateSuite) TestHMACCommandAuthorizationSessionKey(c *C) {
	tpmNonce := testNonce(0x11)
	callerNonce := testNonce(0x22)
	salt := []byte("salt bytes")
	bindAuth := []byte("bind auth")

	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, tpmNonce, callerNonce, salt, bindAuth, false), IsNil)
	d.SetEntityAuthorizationValue([]byte("entity"))

	sessionKey := KDFa(crypto.SHA256, append(append([]byte(nil), bindAuth...), salt...),
		"ATH", tpmNonce, callerNonce, 256)

	commandHash := sha256.Sum256([]byte("command"))
	data, err := d.GetCommandAuthorization(commandHash[:], false, false)
	c.Assert(err, IsNil)
	auth := parseAuthCommand(c, data)

	h := hmac.New(sha256.New, append(append([]byte(nil), sessionKey...), []byte("entity")...))
	h.Write(commandHash[:])
	h.Write(auth.Nonce)
	h.Write(tpmNonce)
	h.Write([]byte{byte(AttrContinueSession)})
	c.Check([]byte(auth.HMAC), DeepEquals, h.Sum(nil))
}

func (s *delegateSuite) TestCheckResponseAuthorization(c *C) {
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, testNonce(1), testNonce(2), nil, nil, false), IsNil)
	d.SetEntityAuthorizationValue([]byte("pw"))

	data, err := d.GetCommandAuthorization(make([]byte, 32), false, false)
	c.Assert(err, IsNil)
	callerNonce := parseAuthCommand(c, data).Nonce

	responseHash := sha256.Sum256([]byte("response parameters"))
	newTPMNonce := testNonce(0x77)

	h := hmac.New(sha256.New, []byte("pw"))
	h.Write(responseHash[:])
	h.Write(newTPMNonce)
	h.Write(callerNonce)
	h.Write([]byte{byte(AttrContinueSession)})

	ok := d.CheckResponseAuthorization(responseHash[:], packAuthResponse(c, &authResponseArea{
		Nonce:        newTPMNonce,
		SessionAttrs: AttrContinueSession,
		HMAC:         h.Sum(nil)}))
	c.Check(ok, Equals, true)
	c.Check(d.TPMNonce(), DeepEquals, newTPMNonce)
}

func (s *delegateSuite) TestCheckResponseAuthorizationRejectsBadHMAC(c *C) {
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, testNonce(1), testNonce(2), nil, nil, false), IsNil)
	d.SetEntityAuthorizationValue([]byte("pw"))

	_, err := d.GetCommandAuthorization(make([]byte, 32), false, false)
	c.Assert(err, IsNil)

	responseHash := sha256.Sum256([]byte("response"))
	ok := d.CheckResponseAuthorization(responseHash[:], packAuthResponse(c, &authResponseArea{
		Nonce:        testNonce(0x77),
		SessionAttrs: AttrContinueSession,
		HMAC:         make(Auth, 32)}))
	c.Check(ok, Equals, false)
}

func (s *delegateSuite) TestCheckResponseAuthorizationRejectsBadNonce(c *C) {
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, testNonce(1), testNonce(2), nil, nil, false), IsNil)

	ok := d.CheckResponseAuthorization(make([]byte, 32), packAuthResponse(c, &authResponseArea{
		Nonce:        testNonce(0x77)[:16],
		SessionAttrs: AttrContinueSession,
		HMAC:         make(Auth, 32)}))
	c.Check(ok, Equals, false)
}

func (s *delegateSuite) TestFutureAuthorizationValue(c *C) {
	tpmNonce := testNonce(1)
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, tpmNonce, testNonce(2), nil, nil, false), IsNil)
	d.SetEntityAuthorizationValue([]byte("old"))
	d.SetFutureAuthorizationValue([]byte("new"))

	respond := func(authValue []byte, tpmNonce Nonce, callerNonce Nonce, responseHash []byte) []byte {
		h := hmac.New(sha256.New, authValue)
		h.Write(responseHash)
		h.Write(tpmNonce)
		h.Write(callerNonce)
		h.Write([]byte{byte(AttrContinueSession)})
		return packAuthResponse(c, &authResponseArea{
			Nonce:        tpmNonce,
			SessionAttrs: AttrContinueSession,
			HMAC:         h.Sum(nil)})
	}

	commandHash := sha256.Sum256([]byte("change auth"))
	data, err := d.GetCommandAuthorization(commandHash[:], false, false)
	c.Assert(err, IsNil)
	callerNonce := parseAuthCommand(c, data).Nonce

	// The response to the command that assigns the new value is
	// authenticated with that value.
	responseHash := sha256.Sum256([]byte("response 1"))
	c.Check(d.CheckResponseAuthorization(responseHash[:],
		respond([]byte("new"), testNonce(3), callerNonce, responseHash[:])), Equals, true)

	// The future value is consumed; subsequent responses use the entity
	// value again.
	data, err = d.GetCommandAuthorization(commandHash[:], false, false)
	c.Assert(err, IsNil)
	callerNonce = parseAuthCommand(c, data).Nonce

	responseHash = sha256.Sum256([]byte("response 2"))
	c.Check(d.CheckResponseAuthorization(responseHash[:],
		respond([]byte("new"), testNonce(4), callerNonce, responseHash[:])), Equals, false)
}

func (s *delegateSuite) TestParameterCryptPassthrough(c *C) {
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, testNonce(1), testNonce(2), nil, nil, false), IsNil)

	param := []byte{0x00, 0x04, 0x01, 0x02, 0x03, 0x04}
	out, err := d.EncryptCommandParameter(param)
	c.Assert(err, IsNil)
	c.Check(out, DeepEquals, param)

	out, err = d.DecryptResponseParameter(param)
	c.Assert(err, IsNil)
	c.Check(out, DeepEquals, param)
}

func (s *delegateSuite) TestEncryptCommandParameter(c *C) {
	tpmNonce := testNonce(0x33)
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, tpmNonce, testNonce(0x44), nil, nil, true), IsNil)
	d.SetEntityAuthorizationValue([]byte("secret"))

	payload := []byte("sensitive parameter data")
	param := append([]byte{0x00, byte(len(payload))}, payload...)

	encrypted, err := d.EncryptCommandParameter(param)
	c.Assert(err, IsNil)
	c.Check(encrypted[:2], DeepEquals, param[:2])
	c.Check(encrypted[2:], Not(DeepEquals), payload)

	// The nonce used for encryption is the one carried by the following
	// authorization.
	data, err := d.GetCommandAuthorization(make([]byte, 32), true, false)
	c.Assert(err, IsNil)
	callerNonce := parseAuthCommand(c, data).Nonce

	kdfOut := KDFa(crypto.SHA256, []byte("secret"), "CFB", callerNonce, tpmNonce, 256+128)
	decrypted := append([]byte(nil), encrypted[2:]...)
	c.Assert(CryptSymmetricDecrypt(kdfOut[:32], kdfOut[32:], decrypted), IsNil)
	c.Check(decrypted, DeepEquals, payload)
}

func (s *delegateSuite) TestDecryptResponseParameter(c *C) {
	tpmNonce := testNonce(0x55)
	callerNonce := testNonce(0x66)
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, tpmNonce, callerNonce, nil, nil, true), IsNil)
	d.SetEntityAuthorizationValue([]byte("secret"))

	payload := []byte("sensitive response data")
	param := append([]byte{0x00, byte(len(payload))}, payload...)

	kdfOut := KDFa(crypto.SHA256, []byte("secret"), "CFB", tpmNonce, callerNonce, 256+128)
	c.Assert(CryptSymmetricEncrypt(kdfOut[:32], kdfOut[32:], param[2:]), IsNil)

	decrypted, err := d.DecryptResponseParameter(param)
	c.Assert(err, IsNil)
	c.Check(decrypted[:2], DeepEquals, []byte{0x00, byte(len(payload))})
	c.Check(decrypted[2:], DeepEquals, payload)
}

func (s *delegateSuite) TestEncryptCommandParameterTooShort(c *C) {
	d := NewHMACAuthorizationDelegate()
	c.Assert(d.InitSession(0x02000001, testNonce(1), testNonce(2), nil, nil, true), IsNil)

	_, err := d.EncryptCommandParameter([]byte{0x00})
	c.Check(err, ErrorMatches, "first command parameter is not size prefixed")
}
