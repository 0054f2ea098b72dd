package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "azvm.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("AZURE_SUBSCRIPTION_ID", "")
	t.Setenv("AZVM_IMAGE_ID", "")

	path := writeConfig(t, `resources:
  resource_group: "SDK-VM"
`)

	cfg, err := LoadFile(path)
	if err == nil {
		t.Error("Expected error for missing subscription ID, but got none")
	}
	if cfg != nil {
		t.Error("Expected config to be nil when validation fails")
	}
}

func TestLoadFileWithDefaults(t *testing.T) {
	t.Setenv("AZVM_ADMIN_PASSWORD", "Q!W@E#r4t5y6")
	t.Setenv("AZURE_SUBSCRIPTION_ID", "")

	path := writeConfig(t, `azure:
  subscription_id: "sub-123"
resources:
  image_id: "/subscriptions/sub-123/resourceGroups/img/providers/Microsoft.Compute/galleries/g/images/win/versions/1.0.0"
lifecycle:
  pacing: 30s
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() unexpected error = %v", err)
	}

	if cfg.Resources.ResourceGroup != "SDK-VM" {
		t.Errorf("ResourceGroup = %q, want SDK-VM", cfg.Resources.ResourceGroup)
	}
	if cfg.Resources.VNet != "SDK-VNET" || cfg.Resources.Subnet != "default" {
		t.Errorf("unexpected network defaults: %q/%q", cfg.Resources.VNet, cfg.Resources.Subnet)
	}
	if cfg.Resources.AdminPassword != "Q!W@E#r4t5y6" {
		t.Error("expected admin password from AZVM_ADMIN_PASSWORD")
	}
	if cfg.Lifecycle.Pacing != 30*time.Second {
		t.Errorf("Pacing = %v, want 30s", cfg.Lifecycle.Pacing)
	}
	if !cfg.Lifecycle.Enabled {
		t.Error("expected lifecycle to be enabled by default")
	}
	if cfg.Naming.VirtualMachinePrefix != "win-vm" {
		t.Errorf("VirtualMachinePrefix = %q, want win-vm", cfg.Naming.VirtualMachinePrefix)
	}
}

func TestLoadFileExpandsEnv(t *testing.T) {
	t.Setenv("AZURE_SUBSCRIPTION_ID", "")
	t.Setenv("TEST_RG", "rg-from-env")

	path := writeConfig(t, `azure:
  subscription_id: "sub-123"
resources:
  resource_group: "${TEST_RG}"
  image_id: "img"
  image_kind: specialized
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() unexpected error = %v", err)
	}
	if cfg.Resources.ResourceGroup != "rg-from-env" {
		t.Errorf("ResourceGroup = %q, want rg-from-env", cfg.Resources.ResourceGroup)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Azure.SubscriptionID = "sub"
		c.Resources.ImageID = "img"
		c.Resources.AdminPassword = "secret"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"specialized without password", func(c *Config) {
			c.Resources.ImageKind = ImageSpecialized
			c.Resources.AdminPassword = ""
		}, false},
		{"generalized without password", func(c *Config) { c.Resources.AdminPassword = "" }, true},
		{"unknown image kind", func(c *Config) { c.Resources.ImageKind = "custom" }, true},
		{"client secret incomplete", func(c *Config) {
			c.Azure.Credential = CredentialClientSecret
			c.Azure.TenantID = "tenant"
		}, true},
		{"client secret complete", func(c *Config) {
			c.Azure.Credential = CredentialClientSecret
			c.Azure.TenantID = "tenant"
			c.Azure.ClientID = "client"
			c.Azure.ClientSecret = "secret"
		}, false},
		{"unknown credential", func(c *Config) { c.Azure.Credential = "token" }, true},
		{"missing subnet", func(c *Config) { c.Resources.Subnet = "" }, true},
		{"empty prefix", func(c *Config) { c.Naming.NetworkInterfacePrefix = "" }, true},
		{"negative pacing", func(c *Config) { c.Lifecycle.Pacing = -time.Second }, true},
		{"etcd without endpoints", func(c *Config) { c.State.Backend = StateBackendEtcd }, true},
		{"etcd with endpoints", func(c *Config) {
			c.State.Backend = StateBackendEtcd
			c.State.EtcdEndpoints = []string{"localhost:2379"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
