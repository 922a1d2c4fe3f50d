// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2_test

import (
	"encoding/binary"

	. "github.com/Citrus-CAF/system-tpm"
	"github.com/Citrus-CAF/system-tpm/testutil"

	. "gopkg.in/check.v1"
)

type tpmSuite struct {
	testutil.BaseTest
}

var _ = Suite(&tpmSuite{})

func responsePacket(tag StructTag, rc ResponseCode, body []byte) []byte {
	packet := make([]byte, 10, 10+len(body))
	binary.BigEndian.PutUint16(packet[0:], uint16(tag))
	binary.BigEndian.PutUint32(packet[2:], uint32(10+len(body)))
	binary.BigEndian.PutUint32(packet[6:], uint32(rc))
	return append(packet, body...)
}

func (s *tpmSuite) TestGetRandomCommandFraming(c *C) {
	random := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	transport := testutil.NewScriptedTransport(
		responsePacket(TagNoSessions, Success, append([]byte{0x00, 0x08}, random...)))
	tpm := NewTPMContext(transport)

	out, err := tpm.GetRandom(16, nil)
	c.Assert(err, IsNil)
	c.Check([]byte(out), DeepEquals, random)

	c.Assert(transport.Commands, HasLen, 1)
	c.Check(transport.Commands[0], DeepEquals, []byte{
		0x80, 0x01, // TPM_ST_NO_SESSIONS
		0x00, 0x00, 0x00, 0x0c, // commandSize
		0x00, 0x00, 0x01, 0x7b, // TPM_CC_GetRandom
		0x00, 0x10}) // bytesRequested
}

func (s *tpmSuite) TestRetryOnRetryableWarning(c *C) {
	transport := testutil.NewScriptedTransport(
		responsePacket(TagNoSessions, ResponseCode(0x00000922), nil),
		responsePacket(TagNoSessions, Success, []byte{0x00, 0x01, 0xaa}))
	tpm := NewTPMContext(transport)

	out, err := tpm.GetRandom(1, nil)
	c.Assert(err, IsNil)
	c.Check([]byte(out), DeepEquals, []byte{0xaa})

	// The same packet is resubmitted unchanged.
	c.Assert(transport.Commands, HasLen, 2)
	c.Check(transport.Commands[1], DeepEquals, transport.Commands[0])
}

func (s *tpmSuite) TestRetryExhaustion(c *C) {
	transport := testutil.NewScriptedTransport(
		responsePacket(TagNoSessions, ResponseCode(0x00000922), nil),
		responsePacket(TagNoSessions, ResponseCode(0x00000922), nil),
		responsePacket(TagNoSessions, ResponseCode(0x00000922), nil))
	tpm := NewTPMContext(transport)

	_, err := tpm.GetRandom(1, nil)
	c.Check(IsTPMWarning(err, WarningRetry, CommandGetRandom), Equals, true)
	c.Check(transport.Commands, HasLen, 3)
}

func (s *tpmSuite) TestNoRetryOnError(c *C) {
	transport := testutil.NewScriptedTransport(
		responsePacket(TagNoSessions, ResponseCode(0x00000100), nil))
	tpm := NewTPMContext(transport)

	err := tpm.Startup(StartupClear)
	c.Check(IsTPMError(err, ErrorInitialize, CommandStartup), Equals, true)
	c.Check(transport.Commands, HasLen, 1)
}

func (s *tpmSuite) TestResponseShorterThanHeader(c *C) {
	transport := testutil.NewScriptedTransport([]byte{0x80, 0x01, 0x00})
	tpm := NewTPMContext(transport)

	_, err := tpm.GetRandom(1, nil)
	c.Assert(err, FitsTypeOf, &InvalidResponseError{})
	c.Check(err, ErrorMatches, ".*response shorter than the response header.*")
}

func (s *tpmSuite) TestInconsistentResponseSize(c *C) {
	resp := responsePacket(TagNoSessions, Success, []byte{0x00, 0x01, 0xaa})
	binary.BigEndian.PutUint32(resp[2:], uint32(len(resp)+4))
	transport := testutil.NewScriptedTransport(resp)
	tpm := NewTPMContext(transport)

	_, err := tpm.GetRandom(1, nil)
	c.Assert(err, FitsTypeOf, &InvalidResponseError{})
	c.Check(err, ErrorMatches, ".*inconsistent responseSize field.*")
}

func (s *tpmSuite) TestPasswordSessionCommand(c *C) {
	// A response to an authorized command carries an empty parameter area
	// followed by the password session's empty authorization.
	respBody := []byte{
		0x00, 0x00, 0x00, 0x00, // parameterSize
		0x00, 0x00, // empty nonce
		0x01,       // continueSession
		0x00, 0x00} // empty hmac
	transport := testutil.NewScriptedTransport(
		responsePacket(TagSessions, Success, respBody))
	tpm := NewTPMContext(transport)

	delegate := NewPasswordAuthorizationDelegate([]byte("owner"))
	c.Assert(tpm.Clear(HandleName{Handle: HandlePlatform}, delegate), IsNil)

	c.Assert(transport.Commands, HasLen, 1)
	c.Check(transport.Commands[0], DeepEquals, []byte{
		0x80, 0x02, // TPM_ST_SESSIONS
		0x00, 0x00, 0x00, 0x20, // commandSize
		0x00, 0x00, 0x01, 0x26, // TPM_CC_Clear
		0x40, 0x00, 0x00, 0x0c, // TPM_RH_PLATFORM
		0x00, 0x00, 0x00, 0x0e, // authorizationSize
		0x40, 0x00, 0x00, 0x09, // TPM_RS_PW
		0x00, 0x00, // empty nonce
		0x01,                               // continueSession
		0x00, 0x05, 'o', 'w', 'n', 'e', 'r'}) // password
}

func (s *tpmSuite) TestMissingResponseAuthorizationArea(c *C) {
	transport := testutil.NewScriptedTransport(
		responsePacket(TagNoSessions, Success, nil))
	tpm := NewTPMContext(transport)

	delegate := NewPasswordAuthorizationDelegate(nil)
	err := tpm.Clear(HandleName{Handle: HandlePlatform}, delegate)
	c.Assert(err, FitsTypeOf, &InvalidResponseError{})
	c.Check(err, ErrorMatches, ".*missing response authorization area.*")
}

func (s *tpmSuite) TestTransportWriteError(c *C) {
	transport := testutil.NewScriptedTransport()
	tpm := NewTPMContext(transport)

	_, err := tpm.GetRandom(1, nil)
	c.Assert(err, FitsTypeOf, &TransportError{})
}
