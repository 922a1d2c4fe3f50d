// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2_test

import (
	"errors"

	. "github.com/Citrus-CAF/system-tpm"
	"github.com/Citrus-CAF/system-tpm/testutil"

	. "gopkg.in/check.v1"
)

type tpmStateSuite struct {
	testutil.BaseTest
}

var _ = Suite(&tpmStateSuite{})

func (s *tpmStateSuite) TestRefresh(c *C) {
	fake := testutil.NewFakeTPM()
	var gotCapability Capability
	var gotProperty, gotCount uint32
	fake.GetCapabilityFn = func(capability Capability, property, propertyCount uint32) (bool, []TaggedProperty, error) {
		gotCapability = capability
		gotProperty = property
		gotCount = propertyCount
		return false, []TaggedProperty{
			{Property: PropertyPermanent, Value: 0},
			{Property: PropertyStartupClear, Value: AttrPhEnable | AttrShEnable | AttrEhEnable},
		}, nil
	}

	state := NewTPMState(fake)
	c.Check(state.Initialized(), Equals, false)

	c.Assert(state.Refresh(), IsNil)
	c.Check(gotCapability, Equals, CapabilityTPMProperties)
	c.Check(gotProperty, Equals, uint32(PropertyVarBase))
	c.Check(gotCount, Equals, uint32(32))

	c.Check(state.Initialized(), Equals, true)
	c.Check(state.PlatformHierarchyEnabled(), Equals, true)
	c.Check(state.StorageHierarchyEnabled(), Equals, true)
	c.Check(state.EndorsementHierarchyEnabled(), Equals, true)
	c.Check(state.OwnerAuthSet(), Equals, false)
	c.Check(state.Owned(), Equals, false)
	c.Check(state.InLockout(), Equals, false)
	c.Check(state.WasShutdownOrderly(), Equals, false)
}

func (s *tpmStateSuite) TestRefreshFlags(c *C) {
	fake := testutil.NewFakeTPM()
	fake.GetCapabilityFn = func(capability Capability, property, propertyCount uint32) (bool, []TaggedProperty, error) {
		return false, []TaggedProperty{
			{Property: PropertyPermanent, Value: AttrOwnerAuthSet | AttrEndorsementAuthSet | AttrLockoutAuthSet | AttrDisableClear | AttrInLockout},
			{Property: PropertyStartupClear, Value: AttrOrderly},
			{Property: PropertyLockoutCounter, Value: 3},
			{Property: PropertyMaxAuthFail, Value: 5},
		}, nil
	}

	state := NewTPMState(fake)
	c.Assert(state.Refresh(), IsNil)

	c.Check(state.Owned(), Equals, true)
	c.Check(state.OwnerAuthSet(), Equals, true)
	c.Check(state.EndorsementAuthSet(), Equals, true)
	c.Check(state.LockoutAuthSet(), Equals, true)
	c.Check(state.ClearDisabled(), Equals, true)
	c.Check(state.InLockout(), Equals, true)
	c.Check(state.WasShutdownOrderly(), Equals, true)
	c.Check(state.PlatformHierarchyEnabled(), Equals, false)
	c.Check(state.LockoutCounter(), Equals, uint32(3))
	c.Check(state.MaxAuthFailures(), Equals, uint32(5))
}

func (s *tpmStateSuite) TestRefreshFollowsMoreData(c *C) {
	fake := testutil.NewFakeTPM()
	var requested []uint32
	fake.GetCapabilityFn = func(capability Capability, property, propertyCount uint32) (bool, []TaggedProperty, error) {
		requested = append(requested, property)
		if len(requested) == 1 {
			return true, []TaggedProperty{{Property: PropertyPermanent, Value: AttrOwnerAuthSet}}, nil
		}
		return false, []TaggedProperty{{Property: PropertyStartupClear, Value: AttrShEnable}}, nil
	}

	state := NewTPMState(fake)
	c.Assert(state.Refresh(), IsNil)
	c.Check(requested, DeepEquals, []uint32{uint32(PropertyPermanent), uint32(PropertyPermanent) + 1})
	c.Check(state.OwnerAuthSet(), Equals, true)
	c.Check(state.StorageHierarchyEnabled(), Equals, true)
}

func (s *tpmStateSuite) TestRefreshMissingProperties(c *C) {
	fake := testutil.NewFakeTPM()
	fake.GetCapabilityFn = func(capability Capability, property, propertyCount uint32) (bool, []TaggedProperty, error) {
		return false, []TaggedProperty{{Property: PropertyLockoutCounter, Value: 0}}, nil
	}

	state := NewTPMState(fake)
	c.Check(state.Refresh(), ErrorMatches, "device did not report TPM_PT_PERMANENT")
	c.Check(state.Initialized(), Equals, false)

	fake.GetCapabilityFn = func(capability Capability, property, propertyCount uint32) (bool, []TaggedProperty, error) {
		return false, []TaggedProperty{{Property: PropertyPermanent, Value: 0}}, nil
	}
	c.Check(state.Refresh(), ErrorMatches, "device did not report TPM_PT_STARTUP_CLEAR")
}

func (s *tpmStateSuite) TestRefreshPropagatesError(c *C) {
	fake := testutil.NewFakeTPM()
	fake.GetCapabilityFn = func(capability Capability, property, propertyCount uint32) (bool, []TaggedProperty, error) {
		return false, nil, errors.New("device gone")
	}

	state := NewTPMState(fake)
	c.Check(state.Refresh(), ErrorMatches, "device gone")
	c.Check(state.Initialized(), Equals, false)
}
