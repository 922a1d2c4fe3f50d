// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// Local validation errors, returned before any command reaches the device.
var (
	// ErrInvalidSession is returned from operations that require an
	// authorization session when no delegate was supplied.
	ErrInvalidSession = errors.New("no valid authorization session")

	// ErrBadParameter is returned when an argument fails validation that
	// doesn't require a device round trip.
	ErrBadParameter = errors.New("invalid parameter")

	// ErrBadSize is returned when a buffer or space size is out of range.
	ErrBadSize = errors.New("invalid size")
)

// ErrorCode represents an error code from the TPM. Format-zero error numbers
// are represented as-is, and format-one error numbers are offset by
// errorCode1Start so that both fit a single code space.
type ErrorCode ResponseCode

const errorCode1Start ErrorCode = 0x80

const (
	// Format-zero error codes.
	ErrorInitialize   ErrorCode = 0x00 // TPM_RC_INITIALIZE
	ErrorFailure      ErrorCode = 0x01 // TPM_RC_FAILURE
	ErrorSequence     ErrorCode = 0x03 // TPM_RC_SEQUENCE
	ErrorDisabled     ErrorCode = 0x20 // TPM_RC_DISABLED
	ErrorExclusive    ErrorCode = 0x21 // TPM_RC_EXCLUSIVE
	ErrorAuthType     ErrorCode = 0x24 // TPM_RC_AUTH_TYPE
	ErrorAuthMissing  ErrorCode = 0x25 // TPM_RC_AUTH_MISSING
	ErrorPolicy       ErrorCode = 0x26 // TPM_RC_POLICY
	ErrorPCR          ErrorCode = 0x27 // TPM_RC_PCR
	ErrorPCRChanged   ErrorCode = 0x28 // TPM_RC_PCR_CHANGED
	ErrorTooManyContexts ErrorCode = 0x2e // TPM_RC_TOO_MANY_CONTEXTS
	ErrorAuthUnavailable ErrorCode = 0x2f // TPM_RC_AUTH_UNAVAILABLE
	ErrorReboot       ErrorCode = 0x30 // TPM_RC_REBOOT
	ErrorCommandCode  ErrorCode = 0x43 // TPM_RC_COMMAND_CODE
	ErrorAuthsize     ErrorCode = 0x44 // TPM_RC_AUTHSIZE
	ErrorAuthContext  ErrorCode = 0x45 // TPM_RC_AUTH_CONTEXT
	ErrorNVRange      ErrorCode = 0x46 // TPM_RC_NV_RANGE
	ErrorNVSize       ErrorCode = 0x47 // TPM_RC_NV_SIZE
	ErrorNVLocked     ErrorCode = 0x48 // TPM_RC_NV_LOCKED
	ErrorNVAuthorization ErrorCode = 0x49 // TPM_RC_NV_AUTHORIZATION
	ErrorNVUninitialized ErrorCode = 0x4a // TPM_RC_NV_UNINITIALIZED
	ErrorNVSpace      ErrorCode = 0x4b // TPM_RC_NV_SPACE
	ErrorNVDefined    ErrorCode = 0x4c // TPM_RC_NV_DEFINED
	ErrorBadContext   ErrorCode = 0x50 // TPM_RC_BAD_CONTEXT
	ErrorCpHash       ErrorCode = 0x51 // TPM_RC_CPHASH
	ErrorParent       ErrorCode = 0x52 // TPM_RC_PARENT
	ErrorNoResult     ErrorCode = 0x54 // TPM_RC_NO_RESULT
	ErrorSensitive    ErrorCode = 0x55 // TPM_RC_SENSITIVE

	// Format-one error codes.
	ErrorAsymmetric   ErrorCode = errorCode1Start + 0x01 // TPM_RC_ASYMMETRIC
	ErrorAttributes   ErrorCode = errorCode1Start + 0x02 // TPM_RC_ATTRIBUTES
	ErrorHash         ErrorCode = errorCode1Start + 0x03 // TPM_RC_HASH
	ErrorValue        ErrorCode = errorCode1Start + 0x04 // TPM_RC_VALUE
	ErrorHierarchy    ErrorCode = errorCode1Start + 0x05 // TPM_RC_HIERARCHY
	ErrorKeySize      ErrorCode = errorCode1Start + 0x07 // TPM_RC_KEY_SIZE
	ErrorMGF          ErrorCode = errorCode1Start + 0x08 // TPM_RC_MGF
	ErrorMode         ErrorCode = errorCode1Start + 0x09 // TPM_RC_MODE
	ErrorType         ErrorCode = errorCode1Start + 0x0a // TPM_RC_TYPE
	ErrorHandle       ErrorCode = errorCode1Start + 0x0b // TPM_RC_HANDLE
	ErrorKDF          ErrorCode = errorCode1Start + 0x0c // TPM_RC_KDF
	ErrorRange        ErrorCode = errorCode1Start + 0x0d // TPM_RC_RANGE
	ErrorAuthFail     ErrorCode = errorCode1Start + 0x0e // TPM_RC_AUTH_FAIL
	ErrorNonce        ErrorCode = errorCode1Start + 0x0f // TPM_RC_NONCE
	ErrorPP           ErrorCode = errorCode1Start + 0x10 // TPM_RC_PP
	ErrorScheme       ErrorCode = errorCode1Start + 0x12 // TPM_RC_SCHEME
	ErrorSize         ErrorCode = errorCode1Start + 0x15 // TPM_RC_SIZE
	ErrorSymmetric    ErrorCode = errorCode1Start + 0x16 // TPM_RC_SYMMETRIC
	ErrorTag          ErrorCode = errorCode1Start + 0x17 // TPM_RC_TAG
	ErrorSelector     ErrorCode = errorCode1Start + 0x18 // TPM_RC_SELECTOR
	ErrorInsufficient ErrorCode = errorCode1Start + 0x1a // TPM_RC_INSUFFICIENT
	ErrorSignature    ErrorCode = errorCode1Start + 0x1b // TPM_RC_SIGNATURE
	ErrorKey          ErrorCode = errorCode1Start + 0x1c // TPM_RC_KEY
	ErrorPolicyFail   ErrorCode = errorCode1Start + 0x1d // TPM_RC_POLICY_FAIL
	ErrorIntegrity    ErrorCode = errorCode1Start + 0x1f // TPM_RC_INTEGRITY
	ErrorTicket       ErrorCode = errorCode1Start + 0x20 // TPM_RC_TICKET
	ErrorReservedBits ErrorCode = errorCode1Start + 0x21 // TPM_RC_RESERVED_BITS
	ErrorBadAuth      ErrorCode = errorCode1Start + 0x22 // TPM_RC_BAD_AUTH
	ErrorExpired      ErrorCode = errorCode1Start + 0x23 // TPM_RC_EXPIRED
	ErrorPolicyCC     ErrorCode = errorCode1Start + 0x24 // TPM_RC_POLICY_CC
	ErrorBinding      ErrorCode = errorCode1Start + 0x25 // TPM_RC_BINDING
	ErrorCurve        ErrorCode = errorCode1Start + 0x26 // TPM_RC_CURVE
	ErrorECCPoint     ErrorCode = errorCode1Start + 0x27 // TPM_RC_ECC_POINT
)

var errorCodeDescriptions = map[ErrorCode]string{
	ErrorInitialize:   "TPM not initialized by TPM2_Startup or already initialized",
	ErrorFailure:      "commands not being accepted because of a TPM failure",
	ErrorSequence:     "improper use of a sequence handle",
	ErrorDisabled:     "the command is disabled",
	ErrorAuthMissing:  "a handle references an entity that requires authorization, but none was provided",
	ErrorPolicy:       "the policy has failed",
	ErrorNVRange:      "NV offset+size is out of range",
	ErrorNVSize:       "requested allocation size is larger than allowed",
	ErrorNVLocked:     "NV access locked",
	ErrorNVAuthorization: "NV access authorization fails",
	ErrorNVUninitialized: "an NV index is used before being initialized",
	ErrorNVSpace:      "insufficient space for NV allocation",
	ErrorNVDefined:    "NV index or persistent object already defined",
	ErrorAttributes:   "inconsistent attributes",
	ErrorHash:         "hash algorithm not supported or not appropriate",
	ErrorValue:        "value is out of range or is not correct for the context",
	ErrorHierarchy:    "hierarchy is not enabled or is not correct for the use",
	ErrorHandle:       "the handle is not correct for the use",
	ErrorRange:        "value was out of allowed range",
	ErrorAuthFail:     "the authorization HMAC check failed and DA counter incremented",
	ErrorNonce:        "invalid nonce size or nonce value mismatch",
	ErrorScheme:       "unsupported or incompatible scheme",
	ErrorSize:         "structure is the wrong size",
	ErrorSignature:    "the signature is not valid",
	ErrorKey:          "key fields are not compatible with the selected use",
	ErrorPolicyFail:   "a policy check failed",
	ErrorIntegrity:    "integrity check failed",
	ErrorBadAuth:      "authorization failure without DA implications",
	ErrorExpired:      "the policy has expired",
}

// WarningCode represents a response from the TPM that is not necessarily an
// error.
type WarningCode ResponseCode

const (
	WarningContextGap     WarningCode = 0x01 // TPM_RC_CONTEXT_GAP
	WarningObjectMemory   WarningCode = 0x02 // TPM_RC_OBJECT_MEMORY
	WarningSessionMemory  WarningCode = 0x03 // TPM_RC_SESSION_MEMORY
	WarningMemory         WarningCode = 0x04 // TPM_RC_MEMORY
	WarningSessionHandles WarningCode = 0x05 // TPM_RC_SESSION_HANDLES
	WarningObjectHandles  WarningCode = 0x06 // TPM_RC_OBJECT_HANDLES
	WarningLocality       WarningCode = 0x07 // TPM_RC_LOCALITY
	WarningYielded        WarningCode = 0x08 // TPM_RC_YIELDED
	WarningCanceled       WarningCode = 0x09 // TPM_RC_CANCELED
	WarningTesting        WarningCode = 0x0a // TPM_RC_TESTING
	WarningNVRate         WarningCode = 0x20 // TPM_RC_NV_RATE
	WarningLockout        WarningCode = 0x21 // TPM_RC_LOCKOUT
	WarningRetry          WarningCode = 0x22 // TPM_RC_RETRY
	WarningNVUnavailable  WarningCode = 0x23 // TPM_RC_NV_UNAVAILABLE
)

var warningCodeDescriptions = map[WarningCode]string{
	WarningContextGap:     "gap for context ID is too large",
	WarningObjectMemory:   "out of memory for object contexts",
	WarningSessionMemory:  "out of memory for session contexts",
	WarningMemory:         "out of shared object/session memory or need space for internal operations",
	WarningSessionHandles: "out of session handles",
	WarningObjectHandles:  "out of object handles",
	WarningYielded:        "the TPM has suspended operation on the command; forward progress was made and the command may be retried",
	WarningCanceled:       "the command was canceled",
	WarningTesting:        "TPM is performing self-tests",
	WarningNVRate:         "the TPM is rate-limiting accesses to prevent wearout of NV",
	WarningLockout:        "authorizations for objects subject to DA protection are not allowed at this time because the TPM is in DA lockout mode",
	WarningRetry:          "the TPM was not able to start the command",
	WarningNVUnavailable:  "the command may require writing of NV and NV is not current accessible",
}

// Constants used to match any value when using the As/Is helpers below.
const (
	AnyCommandCode    CommandCode = 0xc0000000
	AnyErrorCode      ErrorCode   = 0x100
	AnyWarningCode    WarningCode = 0x80
	AnyHandleIndex    int         = -1
	AnyParameterIndex int         = -1
	AnySessionIndex   int         = -1
)

// InvalidResponseError is returned from any method that executes a command
// if the device's response is structurally invalid: shorter than the
// response header, an inconsistent size field, an unknown tag, or a payload
// that fails to unmarshal. Any sessions used in the command that caused this
// error should be considered invalid.
type InvalidResponseError struct {
	Command CommandCode
	msg     string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("TPM returned an invalid response for command %s: %v", e.Command, e.msg)
}

// InvalidAuthResponseError is returned from any method that executes a
// command when the response authorization HMAC fails to verify. This is
// distinct from a device-reported error since it may indicate tampering or a
// desynchronized session.
type InvalidAuthResponseError struct {
	Command CommandCode
	msg     string
}

func (e *InvalidAuthResponseError) Error() string {
	return fmt.Sprintf("TPM returned an invalid authorization response for command %s: %v", e.Command, e.msg)
}

// TransportError is returned from any method that executes a command if the
// underlying transport fails.
type TransportError struct {
	Op  string // the transport operation that failed
	err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cannot complete %s operation on transport: %v", e.Op, e.err)
}

func (e *TransportError) Unwrap() error {
	return e.err
}

// TPM1Error is returned from DecodeResponseCode if the response code
// indicates an error from a TPM 1.2 device.
type TPM1Error struct {
	Command CommandCode
	Code    ResponseCode
}

func (e *TPM1Error) Error() string {
	return fmt.Sprintf("TPM returned a 1.2 error whilst executing command %s: 0x%08x", e.Command, e.Code)
}

// TPMVendorError is returned from DecodeResponseCode if the response code
// indicates a vendor-specific error.
type TPMVendorError struct {
	Command CommandCode
	Code    ResponseCode
}

func (e *TPMVendorError) Error() string {
	return fmt.Sprintf("TPM returned a vendor defined error whilst executing command %s: 0x%08x", e.Command, e.Code)
}

// TPMWarning is returned from DecodeResponseCode if the response code
// indicates a condition that is not necessarily an error.
type TPMWarning struct {
	Command CommandCode
	Code    WarningCode
}

func (e *TPMWarning) Error() string {
	var builder bytes.Buffer
	fmt.Fprintf(&builder, "TPM returned a warning whilst executing command %s: 0x%02x", e.Command, ResponseCode(e.Code))
	if desc, hasDesc := warningCodeDescriptions[e.Code]; hasDesc {
		fmt.Fprintf(&builder, " (%s)", desc)
	}
	return builder.String()
}

// TPMError is returned from DecodeResponseCode if the response code
// indicates an error that is not associated with a handle, parameter or
// session.
type TPMError struct {
	Command CommandCode
	Code    ErrorCode
}

func (e *TPMError) Error() string {
	var builder bytes.Buffer
	fmt.Fprintf(&builder, "TPM returned an error whilst executing command %s: 0x%02x", e.Command, ResponseCode(e.Code))
	if desc, hasDesc := errorCodeDescriptions[e.Code]; hasDesc {
		fmt.Fprintf(&builder, " (%s)", desc)
	}
	return builder.String()
}

// TPMParameterError is returned from DecodeResponseCode if the response code
// indicates an error that is associated with a command parameter. It wraps a
// *TPMError.
type TPMParameterError struct {
	*TPMError
	Index int // index of the parameter in the command parameter area, from 1
}

func (e *TPMParameterError) Error() string {
	return fmt.Sprintf("TPM returned an error for parameter %d whilst executing command %s: 0x%02x", e.Index, e.Command, ResponseCode(e.Code))
}

func (e *TPMParameterError) Unwrap() error {
	return e.TPMError
}

// TPMSessionError is returned from DecodeResponseCode if the response code
// indicates an error that is associated with a session. It wraps a
// *TPMError.
type TPMSessionError struct {
	*TPMError
	Index int // index of the session in the authorization area, from 1
}

func (e *TPMSessionError) Error() string {
	return fmt.Sprintf("TPM returned an error for session %d whilst executing command %s: 0x%02x", e.Index, e.Command, ResponseCode(e.Code))
}

func (e *TPMSessionError) Unwrap() error {
	return e.TPMError
}

// TPMHandleError is returned from DecodeResponseCode if the response code
// indicates an error that is associated with a command handle. It wraps a
// *TPMError.
type TPMHandleError struct {
	*TPMError
	// Index is the index of the handle in the command handle area, from 1.
	// An index of 0 corresponds to an unspecified handle.
	Index int
}

func (e *TPMHandleError) Error() string {
	return fmt.Sprintf("TPM returned an error for handle %d whilst executing command %s: 0x%02x", e.Index, e.Command, ResponseCode(e.Code))
}

func (e *TPMHandleError) Unwrap() error {
	return e.TPMError
}

// AsTPMError indicates whether the error or any error within its chain is a
// *TPMError with the specified ErrorCode and CommandCode, and sets out to
// the value of the error if it is. Use AnyErrorCode and AnyCommandCode to
// match any code.
func AsTPMError(err error, code ErrorCode, command CommandCode, out **TPMError) bool {
	return xerrors.As(err, out) && (code == AnyErrorCode || (*out).Code == code) && (command == AnyCommandCode || (*out).Command == command)
}

// IsTPMError indicates whether the error or any error within its chain is a
// *TPMError with the specified ErrorCode and CommandCode.
func IsTPMError(err error, code ErrorCode, command CommandCode) bool {
	var e *TPMError
	return AsTPMError(err, code, command, &e)
}

// AsTPMHandleError indicates whether the error or any error within its chain
// is a *TPMHandleError with the specified ErrorCode, CommandCode and handle
// index, and sets out to the value of the error if it is.
func AsTPMHandleError(err error, code ErrorCode, command CommandCode, handle int, out **TPMHandleError) bool {
	return xerrors.As(err, out) && (code == AnyErrorCode || (*out).Code == code) && (command == AnyCommandCode || (*out).Command == command) && (handle == AnyHandleIndex || (*out).Index == handle)
}

// IsTPMHandleError indicates whether the error or any error within its chain
// is a *TPMHandleError with the specified ErrorCode, CommandCode and handle
// index.
func IsTPMHandleError(err error, code ErrorCode, command CommandCode, handle int) bool {
	var e *TPMHandleError
	return AsTPMHandleError(err, code, command, handle, &e)
}

// AsTPMParameterError indicates whether the error or any error within its
// chain is a *TPMParameterError with the specified ErrorCode, CommandCode
// and parameter index, and sets out to the value of the error if it is.
func AsTPMParameterError(err error, code ErrorCode, command CommandCode, param int, out **TPMParameterError) bool {
	return xerrors.As(err, out) && (code == AnyErrorCode || (*out).Code == code) && (command == AnyCommandCode || (*out).Command == command) && (param == AnyParameterIndex || (*out).Index == param)
}

// IsTPMParameterError indicates whether the error or any error within its
// chain is a *TPMParameterError with the specified ErrorCode, CommandCode
// and parameter index.
func IsTPMParameterError(err error, code ErrorCode, command CommandCode, param int) bool {
	var e *TPMParameterError
	return AsTPMParameterError(err, code, command, param, &e)
}

// AsTPMSessionError indicates whether the error or any error within its
// chain is a *TPMSessionError with the specified ErrorCode, CommandCode and
// session index, and sets out to the value of the error if it is.
func AsTPMSessionError(err error, code ErrorCode, command CommandCode, session int, out **TPMSessionError) bool {
	return xerrors.As(err, out) && (code == AnyErrorCode || (*out).Code == code) && (command == AnyCommandCode || (*out).Command == command) && (session == AnySessionIndex || (*out).Index == session)
}

// IsTPMSessionError indicates whether the error or any error within its
// chain is a *TPMSessionError with the specified ErrorCode, CommandCode and
// session index.
func IsTPMSessionError(err error, code ErrorCode, command CommandCode, session int) bool {
	var e *TPMSessionError
	return AsTPMSessionError(err, code, command, session, &e)
}

// AsTPMWarning indicates whether the error or any error within its chain is
// a *TPMWarning with the specified WarningCode and CommandCode, and sets out
// to the value of the error if it is.
func AsTPMWarning(err error, code WarningCode, command CommandCode, out **TPMWarning) bool {
	return xerrors.As(err, out) && (code == AnyWarningCode || (*out).Code == code) && (command == AnyCommandCode || (*out).Command == command)
}

// IsTPMWarning indicates whether the error or any error within its chain is
// a *TPMWarning with the specified WarningCode and CommandCode.
func IsTPMWarning(err error, code WarningCode, command CommandCode) bool {
	var e *TPMWarning
	return AsTPMWarning(err, code, command, &e)
}

const (
	formatMask ResponseCode = 1 << 7 // distinguishes format-zero from format-one codes

	fmt0ErrorCodeMask ResponseCode = 0x7f
	fmt0VersionMask   ResponseCode = 1 << 8  // zero for TPM1.2 errors, one for TPM2 errors
	fmt0VendorMask    ResponseCode = 1 << 10 // one for vendor defined errors
	fmt0SeverityMask  ResponseCode = 1 << 11 // one for warnings

	fmt1ErrorCodeMask            ResponseCode = 0x3f
	fmt1IndexShift               uint         = 8
	fmt1ParameterIndexMask       ResponseCode = 0xf << fmt1IndexShift
	fmt1HandleOrSessionIndexMask ResponseCode = 0x7 << fmt1IndexShift
	fmt1ParameterMask            ResponseCode = 1 << 6
	fmt1SessionMask              ResponseCode = 1 << 11
)

// DecodeResponseCode decodes the ResponseCode provided via resp. If the
// specified response code is Success, it returns no error, else it returns
// an error that is appropriate for the response code. The command code is
// used for adding context to the returned error.
func DecodeResponseCode(command CommandCode, resp ResponseCode) error {
	switch {
	case resp == Success:
		return nil
	case resp&formatMask == 0:
		// Format 0 error codes
		switch {
		case resp&fmt0VersionMask == 0:
			return &TPM1Error{command, resp}
		case resp&fmt0VendorMask > 0:
			return &TPMVendorError{command, resp}
		case resp&fmt0SeverityMask > 0:
			return &TPMWarning{command, WarningCode(resp & fmt0ErrorCodeMask)}
		default:
			return &TPMError{command, ErrorCode(resp & fmt0ErrorCodeMask)}
		}
	default:
		// Format 1 error codes
		err := &TPMError{command, ErrorCode(resp&fmt1ErrorCodeMask) + errorCode1Start}
		switch {
		case resp&fmt1ParameterMask > 0:
			return &TPMParameterError{err, int((resp & fmt1ParameterIndexMask) >> fmt1IndexShift)}
		case resp&fmt1SessionMask > 0:
			return &TPMSessionError{err, int((resp & fmt1HandleOrSessionIndexMask) >> fmt1IndexShift)}
		case resp&fmt1HandleOrSessionIndexMask > 0:
			return &TPMHandleError{err, int((resp & fmt1HandleOrSessionIndexMask) >> fmt1IndexShift)}
		default:
			return err
		}
	}
}
