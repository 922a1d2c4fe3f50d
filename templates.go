// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

// KeyUsage selects the capabilities of a created or imported asymmetric
// key.
type KeyUsage int

const (
	// KeyUsageDecrypt marks a key usable for decryption only.
	KeyUsageDecrypt KeyUsage = iota

	// KeyUsageSign marks a key usable for signing only.
	KeyUsageSign

	// KeyUsageDecryptAndSign marks a key usable for both.
	KeyUsageDecryptAndSign
)

// StorageRootKeyTemplate is the public template of the RSA-2048 storage
// root key. The key is a restricted decryption key with a null scheme and
// an empty authorization value; children are protected with AES-128-CFB.
func StorageRootKeyTemplate() *Public {
	return &Public{
		Type:    AlgorithmRSA,
		NameAlg: AlgorithmSHA256,
		Attrs: AttrFixedTPM | AttrFixedParent | AttrSensitiveDataOrigin |
			AttrUserWithAuth | AttrNoDA | AttrRestricted | AttrDecrypt,
		RSAParams: &RSAParams{
			Symmetric: SymDefObject{Algorithm: AlgorithmAES, KeyBits: 128, Mode: AlgorithmCFB},
			Scheme:    RSAScheme{Scheme: AlgorithmNull},
			KeyBits:   2048,
		},
	}
}

// ECCStorageRootKeyTemplate is the public template of the NIST P-256
// storage root key.
func ECCStorageRootKeyTemplate() *Public {
	return &Public{
		Type:    AlgorithmECC,
		NameAlg: AlgorithmSHA256,
		Attrs: AttrFixedTPM | AttrFixedParent | AttrSensitiveDataOrigin |
			AttrUserWithAuth | AttrNoDA | AttrRestricted | AttrDecrypt,
		ECCParams: &ECCParams{
			Symmetric: SymDefObject{Algorithm: AlgorithmAES, KeyBits: 128, Mode: AlgorithmCFB},
			Scheme:    ECCScheme{Scheme: AlgorithmNull},
			CurveID:   ECCCurveNISTP256,
			KDF:       KDFScheme{Scheme: AlgorithmNull},
		},
	}
}

// SaltingKeyTemplate is the public template of the session salting key, an
// RSA-2048 decryption key with a fixed OAEP-SHA256 scheme created under the
// RSA storage root key.
func SaltingKeyTemplate() *Public {
	return &Public{
		Type:    AlgorithmRSA,
		NameAlg: AlgorithmSHA256,
		Attrs: AttrFixedTPM | AttrFixedParent | AttrSensitiveDataOrigin |
			AttrUserWithAuth | AttrNoDA | AttrDecrypt,
		RSAParams: &RSAParams{
			Symmetric: SymDefObject{Algorithm: AlgorithmNull},
			Scheme:    RSAScheme{Scheme: AlgorithmOAEP, HashAlg: AlgorithmSHA256},
			KeyBits:   2048,
		},
	}
}

// RSAKeyTemplate builds the public template for an ordinary RSA key created
// under the storage root key. The scheme is left null so the usage scheme
// is chosen per operation. When a policy digest is supplied and
// useOnlyPolicyAuthorization is set, the password path is disabled and the
// policy becomes the only way to authorize the key.
func RSAKeyTemplate(usage KeyUsage, modulusBits uint16, exponent uint32, policyDigest []byte, useOnlyPolicyAuthorization bool) *Public {
	attrs := AttrFixedTPM | AttrFixedParent | AttrSensitiveDataOrigin |
		AttrUserWithAuth | AttrNoDA
	switch usage {
	case KeyUsageDecrypt:
		attrs |= AttrDecrypt
	case KeyUsageSign:
		attrs |= AttrSign
	case KeyUsageDecryptAndSign:
		attrs |= AttrDecrypt | AttrSign
	}
	if useOnlyPolicyAuthorization && len(policyDigest) > 0 {
		attrs |= AttrAdminWithPolicy
		attrs &^= AttrUserWithAuth
	}
	return &Public{
		Type:       AlgorithmRSA,
		NameAlg:    AlgorithmSHA256,
		Attrs:      attrs,
		AuthPolicy: policyDigest,
		RSAParams: &RSAParams{
			Symmetric: SymDefObject{Algorithm: AlgorithmNull},
			Scheme:    RSAScheme{Scheme: AlgorithmNull},
			KeyBits:   modulusBits,
			Exponent:  exponent,
		},
	}
}
