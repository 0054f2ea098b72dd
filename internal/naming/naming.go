// Package naming derives the names of the resources created by one
// provisioning run.
//
// All three resources share a suffix taken from the last four digits of the
// current Unix time in seconds. Two runs started in the same second (or
// 10000 seconds apart) produce the same names; since every create is a
// create-or-update, the second run updates the first run's resources in
// place instead of failing.
package naming

import (
	"strconv"
	"strings"
	"time"
)

// SuffixLength is the number of decimal digits in a run suffix.
const SuffixLength = 4

const (
	DefaultPublicAddressPrefix    = "pip"
	DefaultNetworkInterfacePrefix = "nic"
	DefaultVirtualMachinePrefix   = "win-vm"
)

// DeriveSuffix returns the last four digits of now as Unix seconds.
func DeriveSuffix(now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	if len(ts) < SuffixLength {
		return strings.Repeat("0", SuffixLength-len(ts)) + ts
	}
	return ts[len(ts)-SuffixLength:]
}

// ComposeName joins prefix and suffix with a dash.
func ComposeName(prefix, suffix string) string {
	return prefix + "-" + suffix
}

// Names holds the resource names of one run.
type Names struct {
	Suffix           string `json:"suffix" yaml:"suffix"`
	PublicAddress    string `json:"public_address" yaml:"public_address"`
	NetworkInterface string `json:"network_interface" yaml:"network_interface"`
	VirtualMachine   string `json:"virtual_machine" yaml:"virtual_machine"`
}

// Policy derives Names from configurable prefixes and a clock.
type Policy struct {
	PublicAddressPrefix    string
	NetworkInterfacePrefix string
	VirtualMachinePrefix   string

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultPolicy returns the pip-/nic-/win-vm- policy on the wall clock.
func DefaultPolicy() Policy {
	return Policy{
		PublicAddressPrefix:    DefaultPublicAddressPrefix,
		NetworkInterfacePrefix: DefaultNetworkInterfacePrefix,
		VirtualMachinePrefix:   DefaultVirtualMachinePrefix,
		Now:                    time.Now,
	}
}

// Derive generates the names for a run from a single suffix.
func (p Policy) Derive() Names {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	suffix := DeriveSuffix(now())
	return Names{
		Suffix:           suffix,
		PublicAddress:    ComposeName(p.PublicAddressPrefix, suffix),
		NetworkInterface: ComposeName(p.NetworkInterfacePrefix, suffix),
		VirtualMachine:   ComposeName(p.VirtualMachinePrefix, suffix),
	}
}
