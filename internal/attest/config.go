package attest

import (
	"maps"
	"time"

	"github.com/st3v3nmw/mirrorcheck/internal/proxyconf"
)

// Config holds configuration options for the test harness.
type Config struct {
	// RunID namespaces every resource created during a run.
	RunID string

	// StoreImage runs the four stores.
	StoreImage string
	// AccessImage backs the volume-access container; it is never started.
	AccessImage string
	// ProxyImage is the proxy under test.
	ProxyImage string
	// ToolImage runs the dump normalize and diff tool.
	ToolImage string

	// ProxyContext and ToolContext are build contexts. When set, the
	// corresponding image is built from them once per run.
	ProxyContext string
	ToolContext  string

	// MountPath is where the shared volume is mounted in every container.
	MountPath string
	// ConfigFile is the proxy configuration file name inside MountPath.
	ConfigFile string

	// HostIP is the host address published ports bind to.
	HostIP string
	// Host ports. Zero picks a free port for every scenario.
	ProxyPort               int
	SourcePort              int
	DestinationPort         int
	SourceExpectedPort      int
	DestinationExpectedPort int

	// ProxyListenPort is the port the proxy binds inside its container.
	ProxyListenPort int
	// HealthPort enables the proxy health probe when non-zero.
	HealthPort int

	// ProcessStartTimeout bounds waiting for stores and the proxy to answer.
	ProcessStartTimeout time.Duration
	// TeardownTimeout bounds releasing a scenario's resources.
	TeardownTimeout time.Duration
	// RetryPollInterval for readiness polling.
	RetryPollInterval time.Duration
	// ExecuteTimeout for a single command round trip.
	ExecuteTimeout time.Duration

	// ConfigDefaults are the proxy options scenarios override.
	ConfigDefaults proxyconf.Options

	// ContainerLogs receives forwarded container output. May be nil.
	ContainerLogs func(container, line string)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RunID:               "local",
		StoreImage:          "redis:5.0.5",
		AccessImage:         "hello-world",
		ProxyImage:          "remiro:latest",
		ToolImage:           "rdb-tools:latest",
		MountPath:           "/data",
		ConfigFile:          "config.toml",
		HostIP:              "127.0.0.1",
		ProxyListenPort:     6400,
		ProcessStartTimeout: 30 * time.Second,
		TeardownTimeout:     30 * time.Second,
		RetryPollInterval:   100 * time.Millisecond,
		ExecuteTimeout:      5 * time.Second,
		ConfigDefaults:      proxyconf.Defaults(),
	}
}

// merge returns a copy of DefaultConfig with every non-zero field of config
// applied over it.
func merge(config *Config) *Config {
	merged := DefaultConfig()
	if config == nil {
		return merged
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v time.Duration) {
		if v != 0 {
			*dst = v
		}
	}

	setString(&merged.RunID, config.RunID)
	setString(&merged.StoreImage, config.StoreImage)
	setString(&merged.AccessImage, config.AccessImage)
	setString(&merged.ProxyImage, config.ProxyImage)
	setString(&merged.ToolImage, config.ToolImage)
	setString(&merged.ProxyContext, config.ProxyContext)
	setString(&merged.ToolContext, config.ToolContext)
	setString(&merged.MountPath, config.MountPath)
	setString(&merged.ConfigFile, config.ConfigFile)
	setString(&merged.HostIP, config.HostIP)

	setInt(&merged.ProxyPort, config.ProxyPort)
	setInt(&merged.SourcePort, config.SourcePort)
	setInt(&merged.DestinationPort, config.DestinationPort)
	setInt(&merged.SourceExpectedPort, config.SourceExpectedPort)
	setInt(&merged.DestinationExpectedPort, config.DestinationExpectedPort)
	setInt(&merged.ProxyListenPort, config.ProxyListenPort)
	setInt(&merged.HealthPort, config.HealthPort)

	setDuration(&merged.ProcessStartTimeout, config.ProcessStartTimeout)
	setDuration(&merged.TeardownTimeout, config.TeardownTimeout)
	setDuration(&merged.RetryPollInterval, config.RetryPollInterval)
	setDuration(&merged.ExecuteTimeout, config.ExecuteTimeout)

	if config.ConfigDefaults != nil {
		merged.ConfigDefaults = maps.Clone(config.ConfigDefaults)
	}

	if config.ContainerLogs != nil {
		merged.ContainerLogs = config.ContainerLogs
	}

	return merged
}
