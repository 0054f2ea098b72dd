package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// CredentialType selects how Azure credentials are obtained
type CredentialType string

const (
	CredentialDefault         CredentialType = "default"
	CredentialClientSecret    CredentialType = "client_secret"
	CredentialManagedIdentity CredentialType = "managed_identity"
	CredentialCLI             CredentialType = "cli"
)

// ImageKind tells whether the source image still needs OS setup
type ImageKind string

const (
	ImageGeneralized ImageKind = "generalized"
	ImageSpecialized ImageKind = "specialized"
)

// StateBackend selects where run records are kept
type StateBackend string

const (
	StateBackendFile StateBackend = "file"
	StateBackendEtcd StateBackend = "etcd"
)

// DefaultPath is read when CONFIG_PATH is not set
const DefaultPath = "azvm.yaml"

// Config contains application configuration
type Config struct {
	Azure     AzureConfig     `yaml:"azure"`
	Resources ResourcesConfig `yaml:"resources"`
	Naming    NamingConfig    `yaml:"naming"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Polling   PollingConfig   `yaml:"polling"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AzureConfig holds subscription and credential settings
type AzureConfig struct {
	SubscriptionID string         `yaml:"subscription_id"`
	Credential     CredentialType `yaml:"credential"`
	TenantID       string         `yaml:"tenant_id"`
	ClientID       string         `yaml:"client_id"`
	ClientSecret   string         `yaml:"client_secret"`
}

// ResourcesConfig names the pre-existing resources and the VM inputs
type ResourcesConfig struct {
	ResourceGroup string    `yaml:"resource_group"`
	VNet          string    `yaml:"vnet"`
	Subnet        string    `yaml:"subnet"`
	ImageID       string    `yaml:"image_id"`
	ImageKind     ImageKind `yaml:"image_kind"`
	AdminUsername string    `yaml:"admin_username"`
	AdminPassword string    `yaml:"admin_password"`
	VMSize        string    `yaml:"vm_size"`
}

// NamingConfig holds the name prefixes for created resources
type NamingConfig struct {
	PublicAddressPrefix    string `yaml:"public_address_prefix"`
	NetworkInterfacePrefix string `yaml:"network_interface_prefix"`
	VirtualMachinePrefix   string `yaml:"virtual_machine_prefix"`
}

// LifecycleConfig controls the stop/start exercise after provisioning
type LifecycleConfig struct {
	Enabled           bool          `yaml:"enabled"`
	ReportAddress     bool          `yaml:"report_address"`
	Pacing            time.Duration `yaml:"pacing"`
	ReadinessAttempts int           `yaml:"readiness_attempts"`
	ReadinessDelay    time.Duration `yaml:"readiness_delay"`
	ReadinessMaxDelay time.Duration `yaml:"readiness_max_delay"`
}

// PollingConfig controls long-running operation polling
type PollingConfig struct {
	Frequency time.Duration `yaml:"frequency"`
}

// StateConfig controls where run records are saved
type StateConfig struct {
	Backend       StateBackend  `yaml:"backend"`
	Path          string        `yaml:"path"`
	EtcdEndpoints []string      `yaml:"etcd_endpoints"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
}

// MetricsConfig controls the optional Pushgateway export
type MetricsConfig struct {
	PushGateway string `yaml:"push_gateway"`
	Job         string `yaml:"job"`
}

// Default returns a configuration with every optional field filled in
func Default() *Config {
	return &Config{
		Azure: AzureConfig{
			Credential: CredentialDefault,
		},
		Resources: ResourcesConfig{
			ResourceGroup: "SDK-VM",
			VNet:          "SDK-VNET",
			Subnet:        "default",
			ImageKind:     ImageGeneralized,
			AdminUsername: "azure-user",
			VMSize:        "Standard_B2ms",
		},
		Naming: NamingConfig{
			PublicAddressPrefix:    "pip",
			NetworkInterfacePrefix: "nic",
			VirtualMachinePrefix:   "win-vm",
		},
		Lifecycle: LifecycleConfig{
			Enabled:           true,
			ReportAddress:     true,
			ReadinessAttempts: 10,
			ReadinessDelay:    5 * time.Second,
			ReadinessMaxDelay: time.Minute,
		},
		Polling: PollingConfig{
			Frequency: 10 * time.Second,
		},
		State: StateConfig{
			Backend:     StateBackendFile,
			Path:        "azvm-state.json",
			DialTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Job: "azvm",
		},
	}
}

// Load loads configuration from the file named by CONFIG_PATH (or azvm.yaml)
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultPath
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a YAML file. A missing file is not an
// error: defaults and environment variables are used instead.
func LoadFile(configPath string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.expandEnv()
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) expandEnv() {
	for _, field := range []*string{
		&c.Azure.SubscriptionID,
		&c.Azure.TenantID,
		&c.Azure.ClientID,
		&c.Azure.ClientSecret,
		&c.Resources.ResourceGroup,
		&c.Resources.VNet,
		&c.Resources.Subnet,
		&c.Resources.ImageID,
		&c.Resources.AdminUsername,
		&c.Resources.AdminPassword,
		&c.State.Path,
		&c.Metrics.PushGateway,
	} {
		*field = os.ExpandEnv(*field)
	}
}

func (c *Config) applyEnvOverrides() {
	overrides := map[string]*string{
		"AZURE_SUBSCRIPTION_ID": &c.Azure.SubscriptionID,
		"AZURE_TENANT_ID":       &c.Azure.TenantID,
		"AZURE_CLIENT_ID":       &c.Azure.ClientID,
		"AZURE_CLIENT_SECRET":   &c.Azure.ClientSecret,
		"AZVM_IMAGE_ID":         &c.Resources.ImageID,
		"AZVM_ADMIN_PASSWORD":   &c.Resources.AdminPassword,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

// Validate checks required parameters and mutually dependent settings
func (c *Config) Validate() error {
	if c.Azure.SubscriptionID == "" {
		return fmt.Errorf("subscription ID is required (set azure.subscription_id in config file or AZURE_SUBSCRIPTION_ID environment variable)")
	}

	switch c.Azure.Credential {
	case CredentialDefault, CredentialManagedIdentity, CredentialCLI:
	case CredentialClientSecret:
		if c.Azure.TenantID == "" || c.Azure.ClientID == "" || c.Azure.ClientSecret == "" {
			return fmt.Errorf("client_secret credential requires tenant_id, client_id and client_secret")
		}
	default:
		return fmt.Errorf("unsupported credential type: %s", c.Azure.Credential)
	}

	if c.Resources.ResourceGroup == "" || c.Resources.VNet == "" || c.Resources.Subnet == "" {
		return fmt.Errorf("resources.resource_group, resources.vnet and resources.subnet are required")
	}
	if c.Resources.ImageID == "" {
		return fmt.Errorf("image ID is required (set resources.image_id in config file or AZVM_IMAGE_ID environment variable)")
	}

	switch c.Resources.ImageKind {
	case ImageGeneralized:
		if c.Resources.AdminUsername == "" || c.Resources.AdminPassword == "" {
			return fmt.Errorf("generalized images require admin_username and admin_password (or AZVM_ADMIN_PASSWORD)")
		}
	case ImageSpecialized:
	default:
		return fmt.Errorf("unsupported image kind: %s", c.Resources.ImageKind)
	}

	if c.Naming.PublicAddressPrefix == "" || c.Naming.NetworkInterfacePrefix == "" || c.Naming.VirtualMachinePrefix == "" {
		return fmt.Errorf("naming prefixes must not be empty")
	}

	if c.Lifecycle.Pacing < 0 {
		return fmt.Errorf("lifecycle.pacing must not be negative")
	}

	switch c.State.Backend {
	case StateBackendFile:
		if c.State.Path == "" {
			return fmt.Errorf("state.path is required for the file backend")
		}
	case StateBackendEtcd:
		if len(c.State.EtcdEndpoints) == 0 {
			return fmt.Errorf("state.etcd_endpoints is required for the etcd backend")
		}
	default:
		return fmt.Errorf("unsupported state backend: %s", c.State.Backend)
	}

	return nil
}
