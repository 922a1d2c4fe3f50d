// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Section 30 - Capability Commands

// taggedPropertyList corresponds to a TPMS_CAPABILITY_DATA union holding a
// TPML_TAGGED_TPM_PROPERTY, the only capability this package queries.
type taggedPropertyList []TaggedProperty

func (l *taggedPropertyList) TPMMarshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, CapabilityTPMProperties); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(*l))); err != nil {
		return err
	}
	for _, prop := range *l {
		if err := binary.Write(w, binary.BigEndian, prop); err != nil {
			return err
		}
	}
	return nil
}

func (l *taggedPropertyList) TPMUnmarshal(r io.Reader) error {
	var capability Capability
	if err := binary.Read(r, binary.BigEndian, &capability); err != nil {
		return err
	}
	if capability != CapabilityTPMProperties {
		return fmt.Errorf("unexpected capability selector 0x%08x", uint32(capability))
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	*l = make(taggedPropertyList, count)
	for i := range *l {
		if err := binary.Read(r, binary.BigEndian, &(*l)[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetCapability queries TPM properties. Only the TPM_CAP_TPM_PROPERTIES
// capability group is supported; it is all the state tracking in this
// package needs.
func (t *TPMContext) GetCapability(capability Capability, property uint32, propertyCount uint32) (bool, []TaggedProperty, error) {
	var moreData uint8
	var properties taggedPropertyList
	if err := t.RunCommand(CommandGetCapability, nil, &commandSpec{
		params:     []interface{}{capability, property, propertyCount},
		respParams: []interface{}{&moreData, &properties},
	}); err != nil {
		return false, nil, err
	}
	return moreData != 0, []TaggedProperty(properties), nil
}
