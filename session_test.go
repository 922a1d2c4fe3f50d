// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2_test

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	. "github.com/Citrus-CAF/system-tpm"
	"github.com/Citrus-CAF/system-tpm/testutil"

	. "gopkg.in/check.v1"
)

type sessionSuite struct {
	testutil.BaseTest
}

var _ = Suite(&sessionSuite{})

type startAuthSessionArgs struct {
	tpmKey        HandleName
	bind          HandleName
	nonceCaller   Nonce
	encryptedSalt EncryptedSecret
	sessionType   SessionType
	symmetric     *SymDef
	authHash      AlgorithmId
}

func scriptStartAuthSession(fake *testutil.FakeTPM, handle Handle, nonceTPM Nonce, args *startAuthSessionArgs) {
	fake.StartAuthSessionFn = func(tpmKey, bind HandleName, nonceCaller Nonce, encryptedSalt EncryptedSecret, sessionType SessionType, symmetric *SymDef, authHash AlgorithmId) (Handle, Nonce, error) {
		*args = startAuthSessionArgs{tpmKey, bind, nonceCaller, encryptedSalt, sessionType, symmetric, authHash}
		return handle, nonceTPM, nil
	}
}

func (s *sessionSuite) TestStartUnboundSession(c *C) {
	fake := testutil.NewFakeTPM()
	var args startAuthSessionArgs
	scriptStartAuthSession(fake, 0x03000000, testNonce(9), &args)

	session := NewHMACSession(fake)
	c.Check(session.GetDelegate(), IsNil)

	c.Assert(session.StartUnboundSession(false, false), IsNil)
	c.Check(args.tpmKey.Handle, Equals, HandleNull)
	c.Check(args.bind.Handle, Equals, HandleNull)
	c.Check(args.nonceCaller, HasLen, 32)
	c.Check(args.encryptedSalt, HasLen, 0)
	c.Check(args.sessionType, Equals, SessionTypeHMAC)
	c.Check(args.symmetric, DeepEquals, SymDefAES256CFB())
	c.Check(args.authHash, Equals, AlgorithmSHA256)

	c.Check(session.GetDelegate(), NotNil)
	c.Check(fake.Calls, DeepEquals, []string{"StartAuthSession"})
}

func (s *sessionSuite) TestStartSaltedSession(c *C) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	c.Assert(err, IsNil)
	saltingPublic := SaltingKeyTemplate()
	saltingPublic.UniqueRSA = key.N.Bytes()
	saltingName, err := ObjectName(saltingPublic)
	c.Assert(err, IsNil)

	fake := testutil.NewFakeTPM()
	fake.ReadPublicFn = func(object Handle) (*Public, Name, Name, error) {
		c.Check(object, Equals, SaltingKeyHandle)
		return saltingPublic, saltingName, nil, nil
	}
	tpmNonce := testNonce(0x42)
	var args startAuthSessionArgs
	scriptStartAuthSession(fake, 0x03000001, tpmNonce, &args)

	session := NewHMACSession(fake)
	c.Assert(session.StartUnboundSession(true, false), IsNil)

	c.Check(args.tpmKey.Handle, Equals, SaltingKeyHandle)
	c.Check(args.tpmKey.Name, DeepEquals, saltingName)
	c.Assert(args.encryptedSalt, HasLen, 256)

	salt, err := rsa.DecryptOAEP(sha256.New(), nil, key, args.encryptedSalt, []byte("SECRET\x00"))
	c.Assert(err, IsNil)
	c.Assert(salt, HasLen, 32)

	// The delegate's session key is derived from the salt and the nonces
	// exchanged at session start.
	sessionKey := KDFa(crypto.SHA256, salt, "ATH", tpmNonce, args.nonceCaller, 256)
	session.SetEntityAuthorizationValue([]byte("entity"))

	commandHash := sha256.Sum256([]byte("command"))
	data, err := session.GetDelegate().GetCommandAuthorization(commandHash[:], false, false)
	c.Assert(err, IsNil)
	auth := parseAuthCommand(c, data)

	h := hmac.New(sha256.New, append(append([]byte(nil), sessionKey...), []byte("entity")...))
	h.Write(commandHash[:])
	h.Write(auth.Nonce)
	h.Write(tpmNonce)
	h.Write([]byte{byte(AttrContinueSession)})
	c.Check([]byte(auth.HMAC), DeepEquals, h.Sum(nil))
}

func (s *sessionSuite) TestStartSessionFlushesOnInitFailure(c *C) {
	fake := testutil.NewFakeTPM()
	var flushed Handle
	fake.StartAuthSessionFn = func(tpmKey, bind HandleName, nonceCaller Nonce, encryptedSalt EncryptedSecret, sessionType SessionType, symmetric *SymDef, authHash AlgorithmId) (Handle, Nonce, error) {
		return 0x03000002, make(Nonce, 16), nil
	}
	fake.FlushContextFn = func(flushHandle Handle) error {
		flushed = flushHandle
		return nil
	}

	session := NewHMACSession(fake)
	c.Check(session.StartUnboundSession(false, false), ErrorMatches, "invalid nonce length")
	c.Check(flushed, Equals, Handle(0x03000002))
	c.Check(session.GetDelegate(), IsNil)
}

func (s *sessionSuite) TestClose(c *C) {
	fake := testutil.NewFakeTPM()
	var args startAuthSessionArgs
	scriptStartAuthSession(fake, 0x03000003, testNonce(1), &args)
	var flushed []Handle
	fake.FlushContextFn = func(flushHandle Handle) error {
		flushed = append(flushed, flushHandle)
		return nil
	}

	session := NewHMACSession(fake)
	c.Assert(session.StartUnboundSession(false, false), IsNil)

	c.Assert(session.Close(), IsNil)
	c.Check(flushed, DeepEquals, []Handle{0x03000003})
	c.Check(session.GetDelegate(), IsNil)

	// Closing again is a no-op.
	c.Assert(session.Close(), IsNil)
	c.Check(flushed, HasLen, 1)
}

func (s *sessionSuite) TestRestartingSessionFlushesPrevious(c *C) {
	fake := testutil.NewFakeTPM()
	var args startAuthSessionArgs
	scriptStartAuthSession(fake, 0x03000004, testNonce(1), &args)

	session := NewHMACSession(fake)
	c.Assert(session.StartUnboundSession(false, false), IsNil)
	c.Assert(session.StartUnboundSession(false, false), IsNil)
	c.Check(fake.Calls, DeepEquals, []string{"StartAuthSession", "FlushContext", "StartAuthSession"})
}

type policySessionSuite struct {
	testutil.BaseTest
}

var _ = Suite(&policySessionSuite{})

func (s *policySessionSuite) TestSessionTypes(c *C) {
	fake := testutil.NewFakeTPM()
	var args startAuthSessionArgs
	scriptStartAuthSession(fake, 0x03000005, testNonce(1), &args)

	c.Assert(NewPolicySession(fake).StartUnboundSession(false, false), IsNil)
	c.Check(args.sessionType, Equals, SessionTypePolicy)

	c.Assert(NewTrialPolicySession(fake).StartUnboundSession(false, false), IsNil)
	c.Check(args.sessionType, Equals, SessionTypeTrial)
}

func (s *policySessionSuite) TestOperationsRequireStartedSession(c *C) {
	session := NewPolicySession(testutil.NewFakeTPM())

	c.Check(session.PolicyAuthValue(), ErrorMatches, "session is not started")
	c.Check(session.PolicyCommandCode(CommandNVWrite), ErrorMatches, "session is not started")
	c.Check(session.PolicyOR(DigestList{}), ErrorMatches, "session is not started")
	c.Check(session.PolicyPCR(map[int][]byte{0: make([]byte, 32)}), ErrorMatches, "session is not started")
	c.Check(session.Restart(), ErrorMatches, "session is not started")
	_, err := session.GetDigest()
	c.Check(err, ErrorMatches, "session is not started")
}

func (s *policySessionSuite) TestPolicyPCR(c *C) {
	fake := testutil.NewFakeTPM()
	var args startAuthSessionArgs
	scriptStartAuthSession(fake, 0x03000006, testNonce(1), &args)

	var gotHandle Handle
	var gotDigest Digest
	var gotSelection PCRSelectionList
	fake.PolicyPCRFn = func(policySession Handle, pcrDigest Digest, pcrs PCRSelectionList) error {
		gotHandle = policySession
		gotDigest = pcrDigest
		gotSelection = pcrs
		return nil
	}

	session := NewPolicySession(fake)
	c.Assert(session.StartUnboundSession(false, false), IsNil)

	d0 := sha256.Sum256([]byte("pcr0"))
	d2 := sha256.Sum256([]byte("pcr2"))
	d7 := sha256.Sum256([]byte("pcr7"))
	c.Assert(session.PolicyPCR(map[int][]byte{7: d7[:], 0: d0[:], 2: d2[:]}), IsNil)

	// The composite digest covers the values in ascending index order.
	h := sha256.New()
	h.Write(d0[:])
	h.Write(d2[:])
	h.Write(d7[:])
	c.Check(gotHandle, Equals, Handle(0x03000006))
	c.Check([]byte(gotDigest), DeepEquals, h.Sum(nil))
	c.Check(gotSelection, DeepEquals, PCRSelectionList{{Hash: AlgorithmSHA256, PCRs: []int{0, 2, 7}}})

	c.Check(session.PolicyPCR(nil), ErrorMatches, "no PCR values provided")
}

func (s *policySessionSuite) TestAssertionForwarding(c *C) {
	fake := testutil.NewFakeTPM()
	var args startAuthSessionArgs
	scriptStartAuthSession(fake, 0x03000007, testNonce(1), &args)

	var gotCode CommandCode
	fake.PolicyCommandCodeFn = func(policySession Handle, code CommandCode) error {
		gotCode = code
		return nil
	}
	var gotDigests DigestList
	fake.PolicyORFn = func(policySession Handle, digests DigestList) error {
		gotDigests = digests
		return nil
	}

	session := NewPolicySession(fake)
	c.Assert(session.StartUnboundSession(false, false), IsNil)

	c.Assert(session.PolicyAuthValue(), IsNil)
	c.Assert(session.PolicyCommandCode(CommandNVWrite), IsNil)
	c.Check(gotCode, Equals, CommandNVWrite)

	digests := DigestList{make(Digest, 32), make(Digest, 32)}
	c.Assert(session.PolicyOR(digests), IsNil)
	c.Check(gotDigests, DeepEquals, digests)

	c.Assert(session.Restart(), IsNil)
	c.Check(fake.Calls, DeepEquals, []string{
		"StartAuthSession", "PolicyAuthValue", "PolicyCommandCode", "PolicyOR", "PolicyRestart"})
}

func (s *policySessionSuite) TestGetDigest(c *C) {
	fake := testutil.NewFakeTPM()
	var args startAuthSessionArgs
	scriptStartAuthSession(fake, 0x03000008, testNonce(1), &args)

	expected := Digest(testNonce(0xd1))
	var gotHandle Handle
	fake.PolicyGetDigestFn = func(policySession Handle) (Digest, error) {
		gotHandle = policySession
		return expected, nil
	}

	session := NewTrialPolicySession(fake)
	c.Assert(session.StartUnboundSession(false, false), IsNil)

	digest, err := session.GetDigest()
	c.Assert(err, IsNil)
	c.Check(digest, DeepEquals, expected)
	c.Check(gotHandle, Equals, Handle(0x03000008))
}
