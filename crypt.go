// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/canonical/go-sp800.108-kdf"
	"golang.org/x/xerrors"
)

// sessionHashAlgorithm is the digest algorithm used for all sessions this
// package starts.
const sessionHashAlgorithm = AlgorithmSHA256

const (
	kdfLabelATH    = "ATH"
	kdfLabelCFB    = "CFB"
	saltLabel      = "SECRET"
	oaepCryptLabel = "ENCRYPT"
)

// KDFa performs key derivation using the counter mode described in
// SP800-108 and HMAC as the PRF, as defined in section 11.4.10.2 of part 1
// of the TPM library spec.
func KDFa(hashAlg crypto.Hash, key []byte, label string, contextU, contextV []byte, sizeInBits int) []byte {
	context := make([]byte, 0, len(contextU)+len(contextV))
	context = append(context, contextU...)
	context = append(context, contextV...)

	return kdf.CounterModeKey(kdf.NewHMACPRF(hashAlg), key, []byte(label), context, uint32(sizeInBits))
}

// CryptSymmetricEncrypt encrypts data in place with AES in CFB mode.
func CryptSymmetricEncrypt(key, iv, data []byte) error {
	c, err := aes.NewCipher(key)
	if err != nil {
		return xerrors.Errorf("cannot construct cipher: %w", err)
	}
	cipher.NewCFBEncrypter(c, iv).XORKeyStream(data, data)
	return nil
}

// CryptSymmetricDecrypt decrypts data in place with AES in CFB mode.
func CryptSymmetricDecrypt(key, iv, data []byte) error {
	c, err := aes.NewCipher(key)
	if err != nil {
		return xerrors.Errorf("cannot construct cipher: %w", err)
	}
	cipher.NewCFBDecrypter(c, iv).XORKeyStream(data, data)
	return nil
}

// ComputeCpHash computes a command parameter digest over the command code,
// the names of the handles in the handle area and the marshaled command
// parameter bytes.
func ComputeCpHash(hashAlg crypto.Hash, command CommandCode, handles []HandleName, cpBytes []byte) []byte {
	h := hashAlg.New()
	binary.Write(h, binary.BigEndian, command)
	for _, handle := range handles {
		h.Write(handle.EffectiveName())
	}
	h.Write(cpBytes)
	return h.Sum(nil)
}

// ComputeRpHash computes a response parameter digest over the response code,
// the command code and the marshaled response parameter bytes.
func ComputeRpHash(hashAlg crypto.Hash, response ResponseCode, command CommandCode, rpBytes []byte) []byte {
	h := hashAlg.New()
	binary.Write(h, binary.BigEndian, response)
	binary.Write(h, binary.BigEndian, command)
	h.Write(rpBytes)
	return h.Sum(nil)
}

// ObjectName computes the canonical name of an object from its public area:
// the name algorithm identifier followed by the digest of the marshaled
// public area.
func ObjectName(public *Public) (Name, error) {
	body, err := public.Marshal()
	if err != nil {
		return nil, xerrors.Errorf("cannot marshal public area: %w", err)
	}
	hashAlg, ok := public.NameAlg.Hash()
	if !ok {
		return nil, errors.New("unsupported name algorithm")
	}
	return taggedDigest(public.NameAlg, hashAlg, body), nil
}

// NVSpaceName computes the canonical name of an NV index from its public
// area.
func NVSpaceName(public *NVPublic) (Name, error) {
	body, err := public.Marshal()
	if err != nil {
		return nil, xerrors.Errorf("cannot marshal NV public area: %w", err)
	}
	hashAlg, ok := public.NameAlg.Hash()
	if !ok {
		return nil, errors.New("unsupported name algorithm")
	}
	return taggedDigest(public.NameAlg, hashAlg, body), nil
}

func taggedDigest(alg AlgorithmId, hashAlg crypto.Hash, body []byte) Name {
	h := hashAlg.New()
	h.Write(body)
	name := make(Name, 2, 2+hashAlg.Size())
	binary.BigEndian.PutUint16(name, uint16(alg))
	return append(name, h.Sum(nil)...)
}

// PublicKeyRSAFromPublic constructs an rsa.PublicKey from an RSA public
// area.
func PublicKeyRSAFromPublic(public *Public) (*rsa.PublicKey, error) {
	if public.Type != AlgorithmRSA || public.RSAParams == nil {
		return nil, errors.New("object is not an RSA key")
	}
	exp := int(public.RSAParams.Exponent)
	if exp == 0 {
		exp = defaultRSAExponent
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(public.UniqueRSA),
		E: exp,
	}, nil
}

// defaultRSAExponent is the value used when a public area's exponent field
// is zero.
const defaultRSAExponent = 65537

// CryptSecretEncrypt encrypts a random seed to the provided RSA public area
// with OAEP, using the zero-terminated label required by the device. It
// returns the seed and its encrypted form.
func CryptSecretEncrypt(public *Public, label string) (secret []byte, encrypted EncryptedSecret, err error) {
	hashAlg, ok := public.NameAlg.Hash()
	if !ok {
		return nil, nil, errors.New("unsupported name algorithm")
	}

	if public.Type != AlgorithmRSA {
		return nil, nil, errors.New("unsupported key type for secret sharing")
	}
	if public.RSAParams.Scheme.Scheme != AlgorithmOAEP && public.RSAParams.Scheme.Scheme != AlgorithmNull {
		return nil, nil, errors.New("unsupported key scheme for secret sharing")
	}

	secret = make([]byte, hashAlg.Size())
	if _, err := rand.Read(secret); err != nil {
		return nil, nil, xerrors.Errorf("cannot read random bytes for secret: %w", err)
	}

	key, err := PublicKeyRSAFromPublic(public)
	if err != nil {
		return nil, nil, err
	}

	// The label is zero terminated on the wire.
	labelBytes := append([]byte(label), 0)
	out, err := rsa.EncryptOAEP(hashAlg.New(), rand.Reader, key, secret, labelBytes)
	if err != nil {
		return nil, nil, xerrors.Errorf("cannot encrypt secret: %w", err)
	}
	return secret, EncryptedSecret(out), nil
}
