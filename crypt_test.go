// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"

	. "github.com/Citrus-CAF/system-tpm"

	. "gopkg.in/check.v1"
)

type cryptSuite struct{}

var _ = Suite(&cryptSuite{})

func (s *cryptSuite) TestKDFa(c *C) {
	key := []byte("key material")
	contextU := []byte{1, 2, 3, 4}
	contextV := []byte{5, 6, 7, 8}

	out := KDFa(crypto.SHA256, key, "ATH", contextU, contextV, 256)
	c.Check(out, HasLen, 32)

	out2 := KDFa(crypto.SHA256, key, "ATH", contextU, contextV, 256)
	c.Check(out2, DeepEquals, out)

	out3 := KDFa(crypto.SHA256, key, "CFB", contextU, contextV, 256)
	c.Check(out3, Not(DeepEquals), out)

	out4 := KDFa(crypto.SHA256, key, "CFB", contextU, contextV, 384)
	c.Check(out4, HasLen, 48)
}

func (s *cryptSuite) TestComputeCpHash(c *C) {
	params := []byte{0x00, 0x04, 0xaa, 0xbb, 0xcc, 0xdd}
	handles := []HandleName{
		{Handle: HandleOwner},
		{Handle: Handle(0x80000000), Name: Name{0x00, 0x0b, 0x01, 0x02}},
	}

	h := sha256.New()
	binary.Write(h, binary.BigEndian, uint32(CommandSign))
	binary.Write(h, binary.BigEndian, uint32(HandleOwner))
	h.Write([]byte{0x00, 0x0b, 0x01, 0x02})
	h.Write(params)

	c.Check(ComputeCpHash(crypto.SHA256, CommandSign, handles, params), DeepEquals, h.Sum(nil))
}

func (s *cryptSuite) TestComputeRpHash(c *C) {
	params := []byte{0x01, 0x02, 0x03}

	h := sha256.New()
	binary.Write(h, binary.BigEndian, uint32(Success))
	binary.Write(h, binary.BigEndian, uint32(CommandGetRandom))
	h.Write(params)

	c.Check(ComputeRpHash(crypto.SHA256, Success, CommandGetRandom, params), DeepEquals, h.Sum(nil))
}

func (s *cryptSuite) TestSymmetricRoundTrip(c *C) {
	key := make([]byte, 32)
	iv := make([]byte, 16)
	rand.Read(key)

	data := []byte("some data to protect")
	buf := append([]byte(nil), data...)

	c.Assert(CryptSymmetricEncrypt(key, iv, buf), IsNil)
	c.Check(buf, Not(DeepEquals), data)

	c.Assert(CryptSymmetricDecrypt(key, iv, buf), IsNil)
	c.Check(buf, DeepEquals, data)
}

func (s *cryptSuite) TestObjectName(c *C) {
	public := RSAKeyTemplate(KeyUsageSign, 2048, 0, nil, false)
	public.UniqueRSA = make([]byte, 256)

	name, err := ObjectName(public)
	c.Assert(err, IsNil)
	c.Assert(name, HasLen, 34)
	c.Check(uint16(name[0])<<8|uint16(name[1]), Equals, uint16(AlgorithmSHA256))

	body, err := public.Marshal()
	c.Assert(err, IsNil)
	digest := sha256.Sum256(body)
	c.Check([]byte(name[2:]), DeepEquals, digest[:])
}

func (s *cryptSuite) TestNVSpaceName(c *C) {
	public := &NVPublic{
		Index:    Handle(0x01000035),
		NameAlg:  AlgorithmSHA256,
		Attrs:    AttrNVOwnerWrite | AttrNVWriteDefine | AttrNVAuthRead,
		DataSize: 256,
	}

	name, err := NVSpaceName(public)
	c.Assert(err, IsNil)
	c.Assert(name, HasLen, 34)

	body, err := public.Marshal()
	c.Assert(err, IsNil)
	digest := sha256.Sum256(body)
	c.Check([]byte(name[2:]), DeepEquals, digest[:])
}

func (s *cryptSuite) TestCryptSecretEncrypt(c *C) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	c.Assert(err, IsNil)

	public := SaltingKeyTemplate()
	public.UniqueRSA = key.N.Bytes()

	secret, encrypted, err := CryptSecretEncrypt(public, "SECRET")
	c.Assert(err, IsNil)
	c.Check(secret, HasLen, 32)
	c.Check(encrypted, HasLen, 256)

	decrypted, err := rsa.DecryptOAEP(sha256.New(), nil, key, encrypted, []byte("SECRET\x00"))
	c.Assert(err, IsNil)
	c.Check(decrypted, DeepEquals, secret)
}

func (s *cryptSuite) TestCryptSecretEncryptRejectsNonRSA(c *C) {
	public := ECCStorageRootKeyTemplate()
	_, _, err := CryptSecretEncrypt(public, "SECRET")
	c.Check(err, ErrorMatches, "unsupported key type for secret sharing")
}
