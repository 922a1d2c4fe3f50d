// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"errors"
)

// TPMState caches the variable TPM properties that drive provisioning
// decisions, principally the TPM_PT_PERMANENT and TPM_PT_STARTUP_CLEAR
// attribute words. The cache is a snapshot; call Refresh before relying on
// the accessors, and again after any command that changes the state.
type TPMState struct {
	tpm         TPM
	initialized bool
	properties  map[Property]uint32
}

// NewTPMState returns an empty state cache for the supplied device.
func NewTPMState(tpm TPM) *TPMState {
	return &TPMState{tpm: tpm, properties: make(map[Property]uint32)}
}

// Refresh re-reads the variable property group from the device.
func (s *TPMState) Refresh() error {
	properties := make(map[Property]uint32)
	next := uint32(PropertyVarBase)
	for {
		moreData, props, err := s.tpm.GetCapability(CapabilityTPMProperties, next, maxProperties)
		if err != nil {
			return err
		}
		for _, prop := range props {
			properties[prop.Property] = prop.Value
		}
		if !moreData || len(props) == 0 {
			break
		}
		next = uint32(props[len(props)-1].Property) + 1
	}
	if _, ok := properties[PropertyPermanent]; !ok {
		return errors.New("device did not report TPM_PT_PERMANENT")
	}
	if _, ok := properties[PropertyStartupClear]; !ok {
		return errors.New("device did not report TPM_PT_STARTUP_CLEAR")
	}
	s.properties = properties
	s.initialized = true
	return nil
}

// maxProperties bounds a single GetCapability response.
const maxProperties = 32

// Initialized reports whether Refresh has completed at least once.
func (s *TPMState) Initialized() bool {
	return s.initialized
}

func (s *TPMState) permanentFlag(flag uint32) bool {
	return s.properties[PropertyPermanent]&flag != 0
}

func (s *TPMState) startupClearFlag(flag uint32) bool {
	return s.properties[PropertyStartupClear]&flag != 0
}

// OwnerAuthSet reports whether an owner hierarchy authorization value has
// been set.
func (s *TPMState) OwnerAuthSet() bool {
	return s.permanentFlag(AttrOwnerAuthSet)
}

// EndorsementAuthSet reports whether an endorsement hierarchy authorization
// value has been set.
func (s *TPMState) EndorsementAuthSet() bool {
	return s.permanentFlag(AttrEndorsementAuthSet)
}

// LockoutAuthSet reports whether a lockout authorization value has been set.
func (s *TPMState) LockoutAuthSet() bool {
	return s.permanentFlag(AttrLockoutAuthSet)
}

// Owned reports whether all three hierarchy authorization values are set,
// the condition TakeOwnership establishes.
func (s *TPMState) Owned() bool {
	return s.OwnerAuthSet() && s.EndorsementAuthSet() && s.LockoutAuthSet()
}

// ClearDisabled reports whether TPM2_Clear has been disabled for this boot
// cycle.
func (s *TPMState) ClearDisabled() bool {
	return s.permanentFlag(AttrDisableClear)
}

// InLockout reports whether the dictionary attack logic has triggered.
func (s *TPMState) InLockout() bool {
	return s.permanentFlag(AttrInLockout)
}

// PlatformHierarchyEnabled reports whether the platform hierarchy is
// enabled.
func (s *TPMState) PlatformHierarchyEnabled() bool {
	return s.startupClearFlag(AttrPhEnable)
}

// StorageHierarchyEnabled reports whether the storage hierarchy is enabled.
func (s *TPMState) StorageHierarchyEnabled() bool {
	return s.startupClearFlag(AttrShEnable)
}

// EndorsementHierarchyEnabled reports whether the endorsement hierarchy is
// enabled.
func (s *TPMState) EndorsementHierarchyEnabled() bool {
	return s.startupClearFlag(AttrEhEnable)
}

// WasShutdownOrderly reports whether the last shutdown was orderly.
func (s *TPMState) WasShutdownOrderly() bool {
	return s.startupClearFlag(AttrOrderly)
}

// LockoutCounter returns the current dictionary attack failure count, if
// the device reported it.
func (s *TPMState) LockoutCounter() uint32 {
	return s.properties[PropertyLockoutCounter]
}

// MaxAuthFailures returns the dictionary attack failure threshold, if the
// device reported it.
func (s *TPMState) MaxAuthFailures() uint32 {
	return s.properties[PropertyMaxAuthFail]
}
