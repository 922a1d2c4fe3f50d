// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"bytes"
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/go-tpm/tpmutil"
)

// Hash returns the crypto.Hash that corresponds to this algorithm, if there
// is one.
func (a AlgorithmId) Hash() (crypto.Hash, bool) {
	switch a {
	case AlgorithmSHA1:
		return crypto.SHA1, true
	case AlgorithmSHA256:
		return crypto.SHA256, true
	case AlgorithmSHA384:
		return crypto.SHA384, true
	case AlgorithmSHA512:
		return crypto.SHA512, true
	default:
		return 0, false
	}
}

// Size returns the digest size of this algorithm, or zero if it isn't a
// supported digest algorithm.
func (a AlgorithmId) Size() int {
	h, ok := a.Hash()
	if !ok {
		return 0
	}
	return h.Size()
}

func (a AlgorithmId) String() string {
	switch a {
	case AlgorithmRSA:
		return "TPM_ALG_RSA"
	case AlgorithmSHA1:
		return "TPM_ALG_SHA1"
	case AlgorithmHMAC:
		return "TPM_ALG_HMAC"
	case AlgorithmAES:
		return "TPM_ALG_AES"
	case AlgorithmKeyedHash:
		return "TPM_ALG_KEYEDHASH"
	case AlgorithmSHA256:
		return "TPM_ALG_SHA256"
	case AlgorithmSHA384:
		return "TPM_ALG_SHA384"
	case AlgorithmSHA512:
		return "TPM_ALG_SHA512"
	case AlgorithmNull:
		return "TPM_ALG_NULL"
	case AlgorithmRSASSA:
		return "TPM_ALG_RSASSA"
	case AlgorithmRSAES:
		return "TPM_ALG_RSAES"
	case AlgorithmRSAPSS:
		return "TPM_ALG_RSAPSS"
	case AlgorithmOAEP:
		return "TPM_ALG_OAEP"
	case AlgorithmECC:
		return "TPM_ALG_ECC"
	case AlgorithmCFB:
		return "TPM_ALG_CFB"
	default:
		return fmt.Sprintf("0x%04x", uint16(a))
	}
}

func marshalSized(w io.Writer, b []byte) error {
	u := tpmutil.U16Bytes(b)
	return u.TPMMarshal(w)
}

func unmarshalSized(r io.Reader, b *[]byte) error {
	var u tpmutil.U16Bytes
	if err := u.TPMUnmarshal(r); err != nil {
		return err
	}
	*b = []byte(u)
	return nil
}

// Digest corresponds to the TPM2B_DIGEST type.
type Digest []byte

func (d *Digest) TPMMarshal(w io.Writer) error   { return marshalSized(w, *d) }
func (d *Digest) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(d)) }

// Nonce corresponds to the TPM2B_NONCE type.
type Nonce = Digest

// Auth corresponds to the TPM2B_AUTH type.
type Auth []byte

func (a *Auth) TPMMarshal(w io.Writer) error   { return marshalSized(w, *a) }
func (a *Auth) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(a)) }

// Data corresponds to the TPM2B_DATA type.
type Data []byte

func (d *Data) TPMMarshal(w io.Writer) error   { return marshalSized(w, *d) }
func (d *Data) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(d)) }

// SensitiveData corresponds to the TPM2B_SENSITIVE_DATA type.
type SensitiveData []byte

func (d *SensitiveData) TPMMarshal(w io.Writer) error   { return marshalSized(w, *d) }
func (d *SensitiveData) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(d)) }

// MaxBuffer corresponds to the TPM2B_MAX_BUFFER type.
type MaxBuffer []byte

func (b *MaxBuffer) TPMMarshal(w io.Writer) error   { return marshalSized(w, *b) }
func (b *MaxBuffer) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(b)) }

// MaxNVBuffer corresponds to the TPM2B_MAX_NV_BUFFER type.
type MaxNVBuffer []byte

func (b *MaxNVBuffer) TPMMarshal(w io.Writer) error   { return marshalSized(w, *b) }
func (b *MaxNVBuffer) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(b)) }

// PublicKeyRSA corresponds to the TPM2B_PUBLIC_KEY_RSA type.
type PublicKeyRSA []byte

func (k *PublicKeyRSA) TPMMarshal(w io.Writer) error   { return marshalSized(w, *k) }
func (k *PublicKeyRSA) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(k)) }

// PrivateKeyRSA corresponds to the TPM2B_PRIVATE_KEY_RSA type.
type PrivateKeyRSA []byte

func (k *PrivateKeyRSA) TPMMarshal(w io.Writer) error   { return marshalSized(w, *k) }
func (k *PrivateKeyRSA) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(k)) }

// Private corresponds to the TPM2B_PRIVATE type.
type Private []byte

func (p *Private) TPMMarshal(w io.Writer) error   { return marshalSized(w, *p) }
func (p *Private) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(p)) }

// EncryptedSecret corresponds to the TPM2B_ENCRYPTED_SECRET type.
type EncryptedSecret []byte

func (s *EncryptedSecret) TPMMarshal(w io.Writer) error   { return marshalSized(w, *s) }
func (s *EncryptedSecret) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(s)) }

// ECCParameter corresponds to the TPM2B_ECC_PARAMETER type.
type ECCParameter []byte

func (p *ECCParameter) TPMMarshal(w io.Writer) error   { return marshalSized(w, *p) }
func (p *ECCParameter) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(p)) }

// Name corresponds to the TPM2B_NAME type.
type Name []byte

func (n *Name) TPMMarshal(w io.Writer) error   { return marshalSized(w, *n) }
func (n *Name) TPMUnmarshal(r io.Reader) error { return unmarshalSized(r, (*[]byte)(n)) }

// SymDefObject corresponds to the TPMT_SYM_DEF_OBJECT type. The KeyBits and
// Mode fields are absent from the wire representation when Algorithm is
// AlgorithmNull.
type SymDefObject struct {
	Algorithm AlgorithmId
	KeyBits   uint16
	Mode      AlgorithmId
}

// SymDef corresponds to the TPMT_SYM_DEF type, which has the same wire
// representation as TPMT_SYM_DEF_OBJECT.
type SymDef = SymDefObject

// SymDefAES256CFB is the symmetric algorithm definition used for session
// parameter encryption and import blob protection.
func SymDefAES256CFB() *SymDefObject {
	return &SymDefObject{Algorithm: AlgorithmAES, KeyBits: 256, Mode: AlgorithmCFB}
}

// SymDefNull is the null symmetric algorithm definition.
func SymDefNull() *SymDefObject {
	return &SymDefObject{Algorithm: AlgorithmNull}
}

func (s *SymDefObject) TPMMarshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, s.Algorithm); err != nil {
		return err
	}
	if s.Algorithm == AlgorithmNull {
		return nil
	}
	if err := binary.Write(w, binary.BigEndian, s.KeyBits); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, s.Mode)
}

func (s *SymDefObject) TPMUnmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &s.Algorithm); err != nil {
		return err
	}
	if s.Algorithm == AlgorithmNull {
		s.KeyBits = 0
		s.Mode = AlgorithmNull
		return nil
	}
	if err := binary.Read(r, binary.BigEndian, &s.KeyBits); err != nil {
		return err
	}
	return binary.Read(r, binary.BigEndian, &s.Mode)
}

// schemeHasHash indicates whether the details of an asymmetric scheme on the
// wire carry a hash algorithm identifier.
func schemeHasHash(scheme AlgorithmId) bool {
	switch scheme {
	case AlgorithmRSASSA, AlgorithmRSAPSS, AlgorithmOAEP, AlgorithmECDSA:
		return true
	default:
		return false
	}
}

// RSAScheme corresponds to the TPMT_RSA_SCHEME and TPMT_RSA_DECRYPT types.
// HashAlg is absent from the wire representation when the scheme has no
// hash-algorithm detail (AlgorithmNull and AlgorithmRSAES).
type RSAScheme struct {
	Scheme  AlgorithmId
	HashAlg AlgorithmId
}

func (s *RSAScheme) TPMMarshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, s.Scheme); err != nil {
		return err
	}
	if !schemeHasHash(s.Scheme) {
		return nil
	}
	return binary.Write(w, binary.BigEndian, s.HashAlg)
}

func (s *RSAScheme) TPMUnmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &s.Scheme); err != nil {
		return err
	}
	if !schemeHasHash(s.Scheme) {
		s.HashAlg = AlgorithmNull
		return nil
	}
	return binary.Read(r, binary.BigEndian, &s.HashAlg)
}

// ECCScheme corresponds to the TPMT_ECC_SCHEME type.
type ECCScheme struct {
	Scheme  AlgorithmId
	HashAlg AlgorithmId
}

func (s *ECCScheme) TPMMarshal(w io.Writer) error {
	return (&RSAScheme{s.Scheme, s.HashAlg}).TPMMarshal(w)
}

func (s *ECCScheme) TPMUnmarshal(r io.Reader) error {
	var rs RSAScheme
	if err := rs.TPMUnmarshal(r); err != nil {
		return err
	}
	s.Scheme = rs.Scheme
	s.HashAlg = rs.HashAlg
	return nil
}

// KDFScheme corresponds to the TPMT_KDF_SCHEME type.
type KDFScheme struct {
	Scheme  AlgorithmId
	HashAlg AlgorithmId
}

func (s *KDFScheme) TPMMarshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, s.Scheme); err != nil {
		return err
	}
	if s.Scheme == AlgorithmNull {
		return nil
	}
	return binary.Write(w, binary.BigEndian, s.HashAlg)
}

func (s *KDFScheme) TPMUnmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &s.Scheme); err != nil {
		return err
	}
	if s.Scheme == AlgorithmNull {
		s.HashAlg = AlgorithmNull
		return nil
	}
	return binary.Read(r, binary.BigEndian, &s.HashAlg)
}

// SigScheme corresponds to the TPMT_SIG_SCHEME type.
type SigScheme struct {
	Scheme  AlgorithmId
	HashAlg AlgorithmId
}

func (s *SigScheme) TPMMarshal(w io.Writer) error {
	return (&RSAScheme{s.Scheme, s.HashAlg}).TPMMarshal(w)
}

func (s *SigScheme) TPMUnmarshal(r io.Reader) error {
	var rs RSAScheme
	if err := rs.TPMUnmarshal(r); err != nil {
		return err
	}
	s.Scheme = rs.Scheme
	s.HashAlg = rs.HashAlg
	return nil
}

// Signature corresponds to the TPMT_SIGNATURE type. Only RSA signatures are
// supported.
type Signature struct {
	SigAlg  AlgorithmId
	HashAlg AlgorithmId
	RSA     PublicKeyRSA
}

func (s *Signature) TPMMarshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, s.SigAlg); err != nil {
		return err
	}
	switch s.SigAlg {
	case AlgorithmRSASSA, AlgorithmRSAPSS:
		if err := binary.Write(w, binary.BigEndian, s.HashAlg); err != nil {
			return err
		}
		return s.RSA.TPMMarshal(w)
	case AlgorithmNull:
		return nil
	default:
		return fmt.Errorf("unsupported signature algorithm %v", s.SigAlg)
	}
}

func (s *Signature) TPMUnmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &s.SigAlg); err != nil {
		return err
	}
	switch s.SigAlg {
	case AlgorithmRSASSA, AlgorithmRSAPSS:
		if err := binary.Read(r, binary.BigEndian, &s.HashAlg); err != nil {
			return err
		}
		return s.RSA.TPMUnmarshal(r)
	case AlgorithmNull:
		s.HashAlg = AlgorithmNull
		s.RSA = nil
		return nil
	default:
		return fmt.Errorf("unsupported signature algorithm %v", s.SigAlg)
	}
}

// TkHashcheck corresponds to the TPMT_TK_HASHCHECK type.
type TkHashcheck struct {
	Tag       StructTag
	Hierarchy Handle
	Digest    Digest
}

// NullTicket returns the null hashcheck ticket, used when signing digests
// that weren't computed by the TPM.
func NullTicket() *TkHashcheck {
	return &TkHashcheck{Tag: TagHashcheck, Hierarchy: HandleNull}
}

// TkVerified corresponds to the TPMT_TK_VERIFIED type.
type TkVerified struct {
	Tag       StructTag
	Hierarchy Handle
	Digest    Digest
}

// TkCreation corresponds to the TPMT_TK_CREATION type.
type TkCreation struct {
	Tag       StructTag
	Hierarchy Handle
	Digest    Digest
}

// ECCPoint corresponds to the TPMS_ECC_POINT type.
type ECCPoint struct {
	X ECCParameter
	Y ECCParameter
}

// RSAParams corresponds to the TPMS_RSA_PARMS type.
type RSAParams struct {
	Symmetric SymDefObject
	Scheme    RSAScheme
	KeyBits   uint16
	Exponent  uint32
}

// ECCParams corresponds to the TPMS_ECC_PARMS type.
type ECCParams struct {
	Symmetric SymDefObject
	Scheme    ECCScheme
	CurveID   ECCCurve
	KDF       KDFScheme
}

// Public corresponds to the TPMT_PUBLIC type, limited to the RSA and ECC
// object types this package creates and inspects. The wire representation
// produced by TPMMarshal is the size-prefixed TPM2B_PUBLIC form; Marshal
// produces the bare TPMT_PUBLIC form used for name computation.
type Public struct {
	Type       AlgorithmId
	NameAlg    AlgorithmId
	Attrs      ObjectAttributes
	AuthPolicy Digest

	RSAParams *RSAParams // valid when Type is AlgorithmRSA
	ECCParams *ECCParams // valid when Type is AlgorithmECC

	UniqueRSA PublicKeyRSA // valid when Type is AlgorithmRSA
	UniqueECC *ECCPoint    // valid when Type is AlgorithmECC
}

// Marshal serializes the bare TPMT_PUBLIC structure.
func (p *Public) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, p.Type); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, p.NameAlg); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, p.Attrs); err != nil {
		return nil, err
	}
	if err := p.AuthPolicy.TPMMarshal(&buf); err != nil {
		return nil, err
	}
	switch p.Type {
	case AlgorithmRSA:
		if p.RSAParams == nil {
			return nil, errors.New("no RSA parameters")
		}
		if err := p.RSAParams.Symmetric.TPMMarshal(&buf); err != nil {
			return nil, err
		}
		if err := p.RSAParams.Scheme.TPMMarshal(&buf); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, p.RSAParams.KeyBits); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, p.RSAParams.Exponent); err != nil {
			return nil, err
		}
		if err := p.UniqueRSA.TPMMarshal(&buf); err != nil {
			return nil, err
		}
	case AlgorithmECC:
		if p.ECCParams == nil {
			return nil, errors.New("no ECC parameters")
		}
		if err := p.ECCParams.Symmetric.TPMMarshal(&buf); err != nil {
			return nil, err
		}
		if err := p.ECCParams.Scheme.TPMMarshal(&buf); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, p.ECCParams.CurveID); err != nil {
			return nil, err
		}
		if err := p.ECCParams.KDF.TPMMarshal(&buf); err != nil {
			return nil, err
		}
		unique := p.UniqueECC
		if unique == nil {
			unique = &ECCPoint{}
		}
		if err := unique.X.TPMMarshal(&buf); err != nil {
			return nil, err
		}
		if err := unique.Y.TPMMarshal(&buf); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported object type %v", p.Type)
	}
	return buf.Bytes(), nil
}

// Unmarshal deserializes a bare TPMT_PUBLIC structure.
func (p *Public) Unmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &p.Type); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &p.NameAlg); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &p.Attrs); err != nil {
		return err
	}
	if err := p.AuthPolicy.TPMUnmarshal(r); err != nil {
		return err
	}
	switch p.Type {
	case AlgorithmRSA:
		params := &RSAParams{}
		if err := params.Symmetric.TPMUnmarshal(r); err != nil {
			return err
		}
		if err := params.Scheme.TPMUnmarshal(r); err != nil {
			return err
		}
		if err := binary.Read(r, binary.BigEndian, &params.KeyBits); err != nil {
			return err
		}
		if err := binary.Read(r, binary.BigEndian, &params.Exponent); err != nil {
			return err
		}
		p.RSAParams = params
		if err := p.UniqueRSA.TPMUnmarshal(r); err != nil {
			return err
		}
	case AlgorithmECC:
		params := &ECCParams{}
		if err := params.Symmetric.TPMUnmarshal(r); err != nil {
			return err
		}
		if err := params.Scheme.TPMUnmarshal(r); err != nil {
			return err
		}
		if err := binary.Read(r, binary.BigEndian, &params.CurveID); err != nil {
			return err
		}
		if err := params.KDF.TPMUnmarshal(r); err != nil {
			return err
		}
		p.ECCParams = params
		unique := &ECCPoint{}
		if err := unique.X.TPMUnmarshal(r); err != nil {
			return err
		}
		if err := unique.Y.TPMUnmarshal(r); err != nil {
			return err
		}
		p.UniqueECC = unique
	default:
		return fmt.Errorf("unsupported object type %v", p.Type)
	}
	return nil
}

// TPMMarshal serializes the size-prefixed TPM2B_PUBLIC form.
func (p *Public) TPMMarshal(w io.Writer) error {
	body, err := p.Marshal()
	if err != nil {
		return err
	}
	return marshalSized(w, body)
}

// TPMUnmarshal deserializes the size-prefixed TPM2B_PUBLIC form.
func (p *Public) TPMUnmarshal(r io.Reader) error {
	var body []byte
	if err := unmarshalSized(r, &body); err != nil {
		return err
	}
	if err := p.Unmarshal(bytes.NewReader(body)); err != nil {
		return err
	}
	return nil
}

// Sensitive corresponds to the TPMT_SENSITIVE type, limited to RSA keys. The
// wire representation produced by TPMMarshal is the size-prefixed
// TPM2B_SENSITIVE form.
type Sensitive struct {
	Type      AlgorithmId
	AuthValue Auth
	SeedValue Digest
	RSA       PrivateKeyRSA
}

func (s *Sensitive) TPMMarshal(w io.Writer) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, s.Type); err != nil {
		return err
	}
	if err := s.AuthValue.TPMMarshal(&buf); err != nil {
		return err
	}
	if err := s.SeedValue.TPMMarshal(&buf); err != nil {
		return err
	}
	if err := s.RSA.TPMMarshal(&buf); err != nil {
		return err
	}
	return marshalSized(w, buf.Bytes())
}

func (s *Sensitive) TPMUnmarshal(r io.Reader) error {
	var body []byte
	if err := unmarshalSized(r, &body); err != nil {
		return err
	}
	br := bytes.NewReader(body)
	if err := binary.Read(br, binary.BigEndian, &s.Type); err != nil {
		return err
	}
	if err := s.AuthValue.TPMUnmarshal(br); err != nil {
		return err
	}
	if err := s.SeedValue.TPMUnmarshal(br); err != nil {
		return err
	}
	return s.RSA.TPMUnmarshal(br)
}

// SensitiveCreate corresponds to the TPMS_SENSITIVE_CREATE type. The wire
// representation produced by TPMMarshal is the size-prefixed
// TPM2B_SENSITIVE_CREATE form.
type SensitiveCreate struct {
	UserAuth Auth
	Data     SensitiveData
}

func (s *SensitiveCreate) TPMMarshal(w io.Writer) error {
	var buf bytes.Buffer
	if err := s.UserAuth.TPMMarshal(&buf); err != nil {
		return err
	}
	if err := s.Data.TPMMarshal(&buf); err != nil {
		return err
	}
	return marshalSized(w, buf.Bytes())
}

func (s *SensitiveCreate) TPMUnmarshal(r io.Reader) error {
	var body []byte
	if err := unmarshalSized(r, &body); err != nil {
		return err
	}
	br := bytes.NewReader(body)
	if err := s.UserAuth.TPMUnmarshal(br); err != nil {
		return err
	}
	return s.Data.TPMUnmarshal(br)
}

// NVPublic corresponds to the TPMS_NV_PUBLIC type. The wire representation
// produced by TPMMarshal is the size-prefixed TPM2B_NV_PUBLIC form; Marshal
// produces the bare structure used for name computation.
type NVPublic struct {
	Index      Handle
	NameAlg    AlgorithmId
	Attrs      NVAttributes
	AuthPolicy Digest
	DataSize   uint16
}

// Marshal serializes the bare TPMS_NV_PUBLIC structure.
func (p *NVPublic) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, p.Index); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, p.NameAlg); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, p.Attrs); err != nil {
		return nil, err
	}
	if err := p.AuthPolicy.TPMMarshal(&buf); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, p.DataSize); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *NVPublic) TPMMarshal(w io.Writer) error {
	body, err := p.Marshal()
	if err != nil {
		return err
	}
	return marshalSized(w, body)
}

func (p *NVPublic) TPMUnmarshal(r io.Reader) error {
	var body []byte
	if err := unmarshalSized(r, &body); err != nil {
		return err
	}
	br := bytes.NewReader(body)
	if err := binary.Read(br, binary.BigEndian, &p.Index); err != nil {
		return err
	}
	if err := binary.Read(br, binary.BigEndian, &p.NameAlg); err != nil {
		return err
	}
	if err := binary.Read(br, binary.BigEndian, &p.Attrs); err != nil {
		return err
	}
	if err := p.AuthPolicy.TPMUnmarshal(br); err != nil {
		return err
	}
	return binary.Read(br, binary.BigEndian, &p.DataSize)
}

// PCRSelection corresponds to the TPMS_PCR_SELECTION type.
type PCRSelection struct {
	Hash AlgorithmId
	PCRs []int
}

func (s *PCRSelection) TPMMarshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, s.Hash); err != nil {
		return err
	}
	sel := make([]byte, 3)
	for _, pcr := range s.PCRs {
		if pcr < 0 || pcr >= len(sel)*8 {
			return fmt.Errorf("invalid PCR index %d", pcr)
		}
		sel[pcr>>3] |= 1 << uint(pcr&7)
	}
	if err := binary.Write(w, binary.BigEndian, uint8(len(sel))); err != nil {
		return err
	}
	_, err := w.Write(sel)
	return err
}

func (s *PCRSelection) TPMUnmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &s.Hash); err != nil {
		return err
	}
	var size uint8
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return err
	}
	sel := make([]byte, size)
	if _, err := io.ReadFull(r, sel); err != nil {
		return err
	}
	s.PCRs = nil
	for i, octet := range sel {
		for bit := 0; bit < 8; bit++ {
			if octet&(1<<uint(bit)) != 0 {
				s.PCRs = append(s.PCRs, i*8+bit)
			}
		}
	}
	return nil
}

// PCRSelectionList corresponds to the TPML_PCR_SELECTION type.
type PCRSelectionList []PCRSelection

func (l *PCRSelectionList) TPMMarshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(*l))); err != nil {
		return err
	}
	for i := range *l {
		if err := (*l)[i].TPMMarshal(w); err != nil {
			return err
		}
	}
	return nil
}

func (l *PCRSelectionList) TPMUnmarshal(r io.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	*l = make(PCRSelectionList, count)
	for i := range *l {
		if err := (*l)[i].TPMUnmarshal(r); err != nil {
			return err
		}
	}
	return nil
}

// DigestList corresponds to the TPML_DIGEST type.
type DigestList []Digest

func (l *DigestList) TPMMarshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(*l))); err != nil {
		return err
	}
	for i := range *l {
		if err := (*l)[i].TPMMarshal(w); err != nil {
			return err
		}
	}
	return nil
}

func (l *DigestList) TPMUnmarshal(r io.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	*l = make(DigestList, count)
	for i := range *l {
		if err := (*l)[i].TPMUnmarshal(r); err != nil {
			return err
		}
	}
	return nil
}

// TaggedHash corresponds to the TPMT_HA type. The digest is not size
// prefixed on the wire; its length is implied by the algorithm.
type TaggedHash struct {
	HashAlg AlgorithmId
	Digest  []byte
}

func (h *TaggedHash) TPMMarshal(w io.Writer) error {
	size := h.HashAlg.Size()
	if size == 0 {
		return fmt.Errorf("unsupported digest algorithm %v", h.HashAlg)
	}
	if len(h.Digest) != size {
		return fmt.Errorf("invalid digest length %d for algorithm %v", len(h.Digest), h.HashAlg)
	}
	if err := binary.Write(w, binary.BigEndian, h.HashAlg); err != nil {
		return err
	}
	_, err := w.Write(h.Digest)
	return err
}

func (h *TaggedHash) TPMUnmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &h.HashAlg); err != nil {
		return err
	}
	size := h.HashAlg.Size()
	if size == 0 {
		return fmt.Errorf("unsupported digest algorithm %v", h.HashAlg)
	}
	h.Digest = make([]byte, size)
	_, err := io.ReadFull(r, h.Digest)
	return err
}

// DigestValues corresponds to the TPML_DIGEST_VALUES type.
type DigestValues []TaggedHash

func (l *DigestValues) TPMMarshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(*l))); err != nil {
		return err
	}
	for i := range *l {
		if err := (*l)[i].TPMMarshal(w); err != nil {
			return err
		}
	}
	return nil
}

func (l *DigestValues) TPMUnmarshal(r io.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	*l = make(DigestValues, count)
	for i := range *l {
		if err := (*l)[i].TPMUnmarshal(r); err != nil {
			return err
		}
	}
	return nil
}

// TaggedProperty corresponds to the TPMS_TAGGED_PROPERTY type.
type TaggedProperty struct {
	Property Property
	Value    uint32
}

// HandleName couples a handle with the name that enters the command
// parameter hash. A nil Name means the handle names itself (permanent
// handles, PCRs and sessions).
type HandleName struct {
	Handle Handle
	Name   Name
}

// EffectiveName returns the name used for authorization hash computation.
func (h HandleName) EffectiveName() Name {
	if h.Name != nil {
		return h.Name
	}
	name := make(Name, 4)
	binary.BigEndian.PutUint32(name, uint32(h.Handle))
	return name
}
