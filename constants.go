// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import "fmt"

// CommandCode corresponds to the TPM_CC type.
type CommandCode uint32

const (
	CommandEvictControl        CommandCode = 0x00000120 // TPM_CC_EvictControl
	CommandNVUndefineSpace     CommandCode = 0x00000122 // TPM_CC_NV_UndefineSpace
	CommandClear               CommandCode = 0x00000126 // TPM_CC_Clear
	CommandHierarchyChangeAuth CommandCode = 0x00000129 // TPM_CC_HierarchyChangeAuth
	CommandNVDefineSpace       CommandCode = 0x0000012a // TPM_CC_NV_DefineSpace
	CommandPCRAllocate         CommandCode = 0x0000012b // TPM_CC_PCR_Allocate
	CommandCreatePrimary       CommandCode = 0x00000131 // TPM_CC_CreatePrimary
	CommandNVWrite             CommandCode = 0x00000137 // TPM_CC_NV_Write
	CommandNVWriteLock         CommandCode = 0x00000138 // TPM_CC_NV_WriteLock
	CommandSelfTest            CommandCode = 0x00000143 // TPM_CC_SelfTest
	CommandStartup             CommandCode = 0x00000144 // TPM_CC_Startup
	CommandShutdown            CommandCode = 0x00000145 // TPM_CC_Shutdown
	CommandStirRandom          CommandCode = 0x00000146 // TPM_CC_StirRandom
	CommandNVRead              CommandCode = 0x0000014e // TPM_CC_NV_Read
	CommandObjectChangeAuth    CommandCode = 0x00000150 // TPM_CC_ObjectChangeAuth
	CommandCreate              CommandCode = 0x00000153 // TPM_CC_Create
	CommandImport              CommandCode = 0x00000156 // TPM_CC_Import
	CommandLoad                CommandCode = 0x00000157 // TPM_CC_Load
	CommandRSADecrypt          CommandCode = 0x00000159 // TPM_CC_RSA_Decrypt
	CommandSign                CommandCode = 0x0000015d // TPM_CC_Sign
	CommandFlushContext        CommandCode = 0x00000165 // TPM_CC_FlushContext
	CommandNVReadPublic        CommandCode = 0x00000169 // TPM_CC_NV_ReadPublic
	CommandPolicyAuthValue     CommandCode = 0x0000016b // TPM_CC_PolicyAuthValue
	CommandPolicyCommandCode   CommandCode = 0x0000016c // TPM_CC_PolicyCommandCode
	CommandPolicyOR            CommandCode = 0x00000171 // TPM_CC_PolicyOR
	CommandReadPublic          CommandCode = 0x00000173 // TPM_CC_ReadPublic
	CommandRSAEncrypt          CommandCode = 0x00000174 // TPM_CC_RSA_Encrypt
	CommandStartAuthSession    CommandCode = 0x00000176 // TPM_CC_StartAuthSession
	CommandVerifySignature     CommandCode = 0x00000177 // TPM_CC_VerifySignature
	CommandGetCapability       CommandCode = 0x0000017a // TPM_CC_GetCapability
	CommandGetRandom           CommandCode = 0x0000017b // TPM_CC_GetRandom
	CommandGetTestResult       CommandCode = 0x0000017c // TPM_CC_GetTestResult
	CommandPCRRead             CommandCode = 0x0000017e // TPM_CC_PCR_Read
	CommandPolicyPCR           CommandCode = 0x0000017f // TPM_CC_PolicyPCR
	CommandPolicyRestart       CommandCode = 0x00000180 // TPM_CC_PolicyRestart
	CommandPCRExtend           CommandCode = 0x00000182 // TPM_CC_PCR_Extend
	CommandPolicyGetDigest     CommandCode = 0x00000189 // TPM_CC_PolicyGetDigest
)

var commandCodeNames = map[CommandCode]string{
	CommandEvictControl:        "TPM_CC_EvictControl",
	CommandNVUndefineSpace:     "TPM_CC_NV_UndefineSpace",
	CommandClear:               "TPM_CC_Clear",
	CommandHierarchyChangeAuth: "TPM_CC_HierarchyChangeAuth",
	CommandNVDefineSpace:       "TPM_CC_NV_DefineSpace",
	CommandPCRAllocate:         "TPM_CC_PCR_Allocate",
	CommandCreatePrimary:       "TPM_CC_CreatePrimary",
	CommandNVWrite:             "TPM_CC_NV_Write",
	CommandNVWriteLock:         "TPM_CC_NV_WriteLock",
	CommandSelfTest:            "TPM_CC_SelfTest",
	CommandStartup:             "TPM_CC_Startup",
	CommandShutdown:            "TPM_CC_Shutdown",
	CommandStirRandom:          "TPM_CC_StirRandom",
	CommandNVRead:              "TPM_CC_NV_Read",
	CommandObjectChangeAuth:    "TPM_CC_ObjectChangeAuth",
	CommandCreate:              "TPM_CC_Create",
	CommandImport:              "TPM_CC_Import",
	CommandLoad:                "TPM_CC_Load",
	CommandRSADecrypt:          "TPM_CC_RSA_Decrypt",
	CommandSign:                "TPM_CC_Sign",
	CommandFlushContext:        "TPM_CC_FlushContext",
	CommandNVReadPublic:        "TPM_CC_NV_ReadPublic",
	CommandPolicyAuthValue:     "TPM_CC_PolicyAuthValue",
	CommandPolicyCommandCode:   "TPM_CC_PolicyCommandCode",
	CommandPolicyOR:            "TPM_CC_PolicyOR",
	CommandReadPublic:          "TPM_CC_ReadPublic",
	CommandRSAEncrypt:          "TPM_CC_RSA_Encrypt",
	CommandStartAuthSession:    "TPM_CC_StartAuthSession",
	CommandVerifySignature:     "TPM_CC_VerifySignature",
	CommandGetCapability:       "TPM_CC_GetCapability",
	CommandGetRandom:           "TPM_CC_GetRandom",
	CommandGetTestResult:       "TPM_CC_GetTestResult",
	CommandPCRRead:             "TPM_CC_PCR_Read",
	CommandPolicyPCR:           "TPM_CC_PolicyPCR",
	CommandPolicyRestart:       "TPM_CC_PolicyRestart",
	CommandPCRExtend:           "TPM_CC_PCR_Extend",
	CommandPolicyGetDigest:     "TPM_CC_PolicyGetDigest",
}

func (c CommandCode) String() string {
	if name, ok := commandCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%08x", uint32(c))
}

// ResponseCode corresponds to the TPM_RC type.
type ResponseCode uint32

// Success corresponds to TPM_RC_SUCCESS.
const Success ResponseCode = 0x000

// StructTag corresponds to the TPM_ST type.
type StructTag uint16

const (
	TagNoSessions StructTag = 0x8001 // TPM_ST_NO_SESSIONS
	TagSessions   StructTag = 0x8002 // TPM_ST_SESSIONS
	TagVerified   StructTag = 0x8022 // TPM_ST_VERIFIED
	TagAuthSecret StructTag = 0x8023 // TPM_ST_AUTH_SECRET
	TagHashcheck  StructTag = 0x8024 // TPM_ST_HASHCHECK
	TagAuthSigned StructTag = 0x8025 // TPM_ST_AUTH_SIGNED
)

// StartupType corresponds to the TPM_SU type.
type StartupType uint16

const (
	StartupClear StartupType = 0x0000 // TPM_SU_CLEAR
	StartupState StartupType = 0x0001 // TPM_SU_STATE
)

// SessionType corresponds to the TPM_SE type.
type SessionType uint8

const (
	SessionTypeHMAC   SessionType = 0x00 // TPM_SE_HMAC
	SessionTypePolicy SessionType = 0x01 // TPM_SE_POLICY
	SessionTypeTrial  SessionType = 0x03 // TPM_SE_TRIAL
)

// Capability corresponds to the TPM_CAP type.
type Capability uint32

const (
	CapabilityAlgs          Capability = 0x00000000 // TPM_CAP_ALGS
	CapabilityHandles       Capability = 0x00000001 // TPM_CAP_HANDLES
	CapabilityCommands      Capability = 0x00000002 // TPM_CAP_COMMANDS
	CapabilityPCRs          Capability = 0x00000005 // TPM_CAP_PCRS
	CapabilityTPMProperties Capability = 0x00000006 // TPM_CAP_TPM_PROPERTIES
)

// Property corresponds to the TPM_PT type.
type Property uint32

const (
	PropertyFixedBase      Property = 0x100                   // PT_FIXED
	PropertyManufacturer   Property = PropertyFixedBase + 5   // TPM_PT_MANUFACTURER
	PropertyInputBuffer    Property = PropertyFixedBase + 13  // TPM_PT_INPUT_BUFFER
	PropertyVarBase        Property = 0x200                   // PT_VAR
	PropertyPermanent      Property = PropertyVarBase         // TPM_PT_PERMANENT
	PropertyStartupClear   Property = PropertyVarBase + 1     // TPM_PT_STARTUP_CLEAR
	PropertyLockoutCounter Property = PropertyVarBase + 14    // TPM_PT_LOCKOUT_COUNTER
	PropertyMaxAuthFail    Property = PropertyVarBase + 15    // TPM_PT_MAX_AUTH_FAIL
)

// TPM_PT_PERMANENT attribute flags.
const (
	AttrOwnerAuthSet       uint32 = 1 << 0  // ownerAuthSet
	AttrEndorsementAuthSet uint32 = 1 << 1  // endorsementAuthSet
	AttrLockoutAuthSet     uint32 = 1 << 2  // lockoutAuthSet
	AttrDisableClear       uint32 = 1 << 8  // disableClear
	AttrInLockout          uint32 = 1 << 9  // inLockout
	AttrTPMGeneratedEPS    uint32 = 1 << 10 // tpmGeneratedEPS
)

// TPM_PT_STARTUP_CLEAR attribute flags.
const (
	AttrPhEnable   uint32 = 1 << 0  // phEnable
	AttrShEnable   uint32 = 1 << 1  // shEnable
	AttrEhEnable   uint32 = 1 << 2  // ehEnable
	AttrPhEnableNV uint32 = 1 << 3  // phEnableNV
	AttrOrderly    uint32 = 1 << 31 // orderly
)

// Handle corresponds to the TPM_HANDLE type, and is a reference to a
// resource that resides on the TPM.
type Handle uint32

// HandleType corresponds to the TPM_HT type, and is the most significant
// byte of a handle.
type HandleType uint8

const (
	HandleTypePCR           HandleType = 0x00 // TPM_HT_PCR
	HandleTypeNVIndex       HandleType = 0x01 // TPM_HT_NV_INDEX
	HandleTypeHMACSession   HandleType = 0x02 // TPM_HT_HMAC_SESSION
	HandleTypePolicySession HandleType = 0x03 // TPM_HT_POLICY_SESSION
	HandleTypePermanent     HandleType = 0x40 // TPM_HT_PERMANENT
	HandleTypeTransient     HandleType = 0x80 // TPM_HT_TRANSIENT
	HandleTypePersistent    HandleType = 0x81 // TPM_HT_PERSISTENT
)

// Type returns the type of the handle.
func (h Handle) Type() HandleType {
	return HandleType(h >> 24)
}

const (
	HandleOwner       Handle = 0x40000001 // TPM_RH_OWNER
	HandleNull        Handle = 0x40000007 // TPM_RH_NULL
	HandlePW          Handle = 0x40000009 // TPM_RS_PW
	HandleLockout     Handle = 0x4000000a // TPM_RH_LOCKOUT
	HandleEndorsement Handle = 0x4000000b // TPM_RH_ENDORSEMENT
	HandlePlatform    Handle = 0x4000000c // TPM_RH_PLATFORM
	HandleUnassigned  Handle = 0xffffffff // TPM_RH_UNASSIGNED

	HandleTypeNVIndexBase   Handle = 0x01000000 // NV_INDEX_FIRST
	HandleTypeTransientBase Handle = 0x80000000 // TRANSIENT_FIRST
)

// Well known persistent handles provisioned by Utility.
const (
	StorageRootKeyHandle    Handle = 0x81000001 // RSA storage root key
	ECCStorageRootKeyHandle Handle = 0x81000002 // ECC storage root key
	SaltingKeyHandle        Handle = 0x81000003 // session salting key
)

// AlgorithmId corresponds to the TPM_ALG_ID type.
type AlgorithmId uint16

const (
	AlgorithmError     AlgorithmId = 0x0000 // TPM_ALG_ERROR
	AlgorithmRSA       AlgorithmId = 0x0001 // TPM_ALG_RSA
	AlgorithmSHA1      AlgorithmId = 0x0004 // TPM_ALG_SHA1
	AlgorithmHMAC      AlgorithmId = 0x0005 // TPM_ALG_HMAC
	AlgorithmAES       AlgorithmId = 0x0006 // TPM_ALG_AES
	AlgorithmKeyedHash AlgorithmId = 0x0008 // TPM_ALG_KEYEDHASH
	AlgorithmXOR       AlgorithmId = 0x000a // TPM_ALG_XOR
	AlgorithmSHA256    AlgorithmId = 0x000b // TPM_ALG_SHA256
	AlgorithmSHA384    AlgorithmId = 0x000c // TPM_ALG_SHA384
	AlgorithmSHA512    AlgorithmId = 0x000d // TPM_ALG_SHA512
	AlgorithmNull      AlgorithmId = 0x0010 // TPM_ALG_NULL
	AlgorithmRSASSA    AlgorithmId = 0x0014 // TPM_ALG_RSASSA
	AlgorithmRSAES     AlgorithmId = 0x0015 // TPM_ALG_RSAES
	AlgorithmRSAPSS    AlgorithmId = 0x0016 // TPM_ALG_RSAPSS
	AlgorithmOAEP      AlgorithmId = 0x0017 // TPM_ALG_OAEP
	AlgorithmECDSA     AlgorithmId = 0x0018 // TPM_ALG_ECDSA
	AlgorithmECC       AlgorithmId = 0x0023 // TPM_ALG_ECC
	AlgorithmSymCipher AlgorithmId = 0x0025 // TPM_ALG_SYMCIPHER
	AlgorithmCFB       AlgorithmId = 0x0043 // TPM_ALG_CFB
)

// ECCCurve corresponds to the TPM_ECC_CURVE type.
type ECCCurve uint16

// ECCCurveNISTP256 corresponds to TPM_ECC_NIST_P256.
const ECCCurveNISTP256 ECCCurve = 0x0003

// ObjectAttributes corresponds to the TPMA_OBJECT type.
type ObjectAttributes uint32

const (
	AttrFixedTPM             ObjectAttributes = 1 << 1  // fixedTPM
	AttrStClear              ObjectAttributes = 1 << 2  // stClear
	AttrFixedParent          ObjectAttributes = 1 << 4  // fixedParent
	AttrSensitiveDataOrigin  ObjectAttributes = 1 << 5  // sensitiveDataOrigin
	AttrUserWithAuth         ObjectAttributes = 1 << 6  // userWithAuth
	AttrAdminWithPolicy      ObjectAttributes = 1 << 7  // adminWithPolicy
	AttrNoDA                 ObjectAttributes = 1 << 10 // noDA
	AttrEncryptedDuplication ObjectAttributes = 1 << 11 // encryptedDuplication
	AttrRestricted           ObjectAttributes = 1 << 16 // restricted
	AttrDecrypt              ObjectAttributes = 1 << 17 // decrypt
	AttrSign                 ObjectAttributes = 1 << 18 // sign
)

// NVAttributes corresponds to the TPMA_NV type.
type NVAttributes uint32

const (
	AttrNVPPWrite      NVAttributes = 1 << 0  // TPMA_NV_PPWRITE
	AttrNVOwnerWrite   NVAttributes = 1 << 1  // TPMA_NV_OWNERWRITE
	AttrNVAuthWrite    NVAttributes = 1 << 2  // TPMA_NV_AUTHWRITE
	AttrNVPolicyWrite  NVAttributes = 1 << 3  // TPMA_NV_POLICYWRITE
	AttrNVPolicyDelete NVAttributes = 1 << 10 // TPMA_NV_POLICY_DELETE
	AttrNVWriteLocked  NVAttributes = 1 << 11 // TPMA_NV_WRITELOCKED
	AttrNVWriteAll     NVAttributes = 1 << 12 // TPMA_NV_WRITEALL
	AttrNVWriteDefine  NVAttributes = 1 << 13 // TPMA_NV_WRITEDEFINE
	AttrNVWriteStClear NVAttributes = 1 << 14 // TPMA_NV_WRITE_STCLEAR
	AttrNVGlobalLock   NVAttributes = 1 << 15 // TPMA_NV_GLOBALLOCK
	AttrNVPPRead       NVAttributes = 1 << 16 // TPMA_NV_PPREAD
	AttrNVOwnerRead    NVAttributes = 1 << 17 // TPMA_NV_OWNERREAD
	AttrNVAuthRead     NVAttributes = 1 << 18 // TPMA_NV_AUTHREAD
	AttrNVPolicyRead   NVAttributes = 1 << 19 // TPMA_NV_POLICYREAD
	AttrNVNoDA         NVAttributes = 1 << 25 // TPMA_NV_NO_DA
	AttrNVOrderly      NVAttributes = 1 << 26 // TPMA_NV_ORDERLY
	AttrNVClearStClear NVAttributes = 1 << 27 // TPMA_NV_CLEAR_STCLEAR
	AttrNVReadLocked   NVAttributes = 1 << 28 // TPMA_NV_READLOCKED
	AttrNVWritten      NVAttributes = 1 << 29 // TPMA_NV_WRITTEN
	AttrNVPlatformCreate NVAttributes = 1 << 30 // TPMA_NV_PLATFORMCREATE
)

// SessionAttributes corresponds to the TPMA_SESSION type.
type SessionAttributes uint8

const (
	AttrContinueSession SessionAttributes = 1 << 0 // continueSession
	AttrAuditExclusive  SessionAttributes = 1 << 1 // auditExclusive
	AttrAuditReset      SessionAttributes = 1 << 2 // auditReset
	AttrCommandEncrypt  SessionAttributes = 1 << 5 // decrypt
	AttrResponseEncrypt SessionAttributes = 1 << 6 // encrypt
	AttrAudit           SessionAttributes = 1 << 7 // audit
)

// Limits that apply before any command is submitted to the device.
const (
	// MaxNVIndex is the upper bound of the logical NV index range. Logical
	// indices are offset by HandleTypeNVIndexBase to form the device handle,
	// so anything at or above this would escape the NV handle range.
	MaxNVIndex uint32 = 1 << 24

	// MaxNVSize is the maximum size of a defined NV space, and the maximum
	// length of a single NV read or write.
	MaxNVSize uint32 = 1024

	// MaxStirBytes is the maximum seed length accepted by StirRandom.
	MaxStirBytes = 128

	// MaxRandomBytes is the number of bytes requested from the device per
	// GetRandom round trip.
	MaxRandomBytes = 128

	// PCRCount is the number of PCRs in a bank.
	PCRCount = 24
)
