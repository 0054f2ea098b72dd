package naming

import (
	"regexp"
	"testing"
	"time"
)

var fourDigits = regexp.MustCompile(`^[0-9]{4}$`)

func TestDeriveSuffix(t *testing.T) {
	tests := []struct {
		name     string
		unix     int64
		expected string
	}{
		{"typical timestamp", 1700001234, "1234"},
		{"leading zeros kept", 1700000042, "0042"},
		{"all zeros", 1700000000, "0000"},
		{"short timestamp padded", 42, "0042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveSuffix(time.Unix(tt.unix, 0))
			if got != tt.expected {
				t.Errorf("DeriveSuffix(%d) = %q, want %q", tt.unix, got, tt.expected)
			}
		})
	}
}

func TestComposeNameLength(t *testing.T) {
	prefixes := []string{"pip", "nic", "win-vm", "x", ""}
	for _, ts := range []int64{1700000000, 1712345678, 1799999999, 2000000001} {
		suffix := DeriveSuffix(time.Unix(ts, 0))
		if !fourDigits.MatchString(suffix) {
			t.Fatalf("suffix %q is not exactly 4 decimal digits", suffix)
		}
		for _, prefix := range prefixes {
			name := ComposeName(prefix, suffix)
			if want := len(prefix) + 1 + len(suffix); len(name) != want {
				t.Errorf("len(ComposeName(%q, %q)) = %d, want %d", prefix, suffix, len(name), want)
			}
		}
	}
}

func TestPolicyDerive(t *testing.T) {
	p := DefaultPolicy()
	p.Now = func() time.Time { return time.Unix(1700005678, 0) }

	names := p.Derive()

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Suffix", names.Suffix, "5678"},
		{"PublicAddress", names.PublicAddress, "pip-5678"},
		{"NetworkInterface", names.NetworkInterface, "nic-5678"},
		{"VirtualMachine", names.VirtualMachine, "win-vm-5678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestPolicyDeriveNilClock(t *testing.T) {
	p := Policy{PublicAddressPrefix: "a", NetworkInterfacePrefix: "b", VirtualMachinePrefix: "c"}
	names := p.Derive()
	if !fourDigits.MatchString(names.Suffix) {
		t.Errorf("suffix %q is not exactly 4 decimal digits", names.Suffix)
	}
}
