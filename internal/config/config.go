package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/st3v3nmw/mirrorcheck/internal/attest"
	"github.com/st3v3nmw/mirrorcheck/internal/proxyconf"
)

const ConfigPath = "mirrorcheck.yaml"

// ErrNotFound is returned by Load when the file does not exist.
var ErrNotFound = errors.New("config file not found")

type Build struct {
	// Proxy and Tool are docker build contexts. An empty context pulls the
	// image instead.
	Proxy string `yaml:"proxy,omitempty"`
	Tool  string `yaml:"tool,omitempty"`
}

type Images struct {
	Store  string `yaml:"store"`
	Access string `yaml:"access"`
	Proxy  string `yaml:"proxy"`
	Tool   string `yaml:"tool"`
}

type Ports struct {
	Proxy               int `yaml:"proxy"`
	Source              int `yaml:"src"`
	Destination         int `yaml:"dst"`
	SourceExpected      int `yaml:"src_expected"`
	DestinationExpected int `yaml:"dst_expected"`
	ProxyListen         int `yaml:"proxy_listen"`
	Health              int `yaml:"health"`
}

type Timeouts struct {
	ProcessStart string `yaml:"process_start"`
	Teardown     string `yaml:"teardown"`
	RetryPoll    string `yaml:"retry_poll"`
	Execute      string `yaml:"execute"`
}

type Config struct {
	RunID     string         `yaml:"run_id,omitempty"`
	Build     Build          `yaml:"build"`
	Images    Images         `yaml:"images"`
	MountPath string         `yaml:"mount_path"`
	HostIP    string         `yaml:"host_ip"`
	Ports     Ports          `yaml:"ports"`
	Timeouts  Timeouts       `yaml:"timeouts"`
	Defaults  map[string]any `yaml:"defaults"`
	Sets      []string       `yaml:"sets,omitempty"`
	Files     []string       `yaml:"files,omitempty"`
}

// Default returns the configuration written by init.
func Default() *Config {
	d := attest.DefaultConfig()

	return &Config{
		Build: Build{Proxy: ".", Tool: "rdb-tools"},
		Images: Images{
			Store:  d.StoreImage,
			Access: d.AccessImage,
			Proxy:  d.ProxyImage,
			Tool:   d.ToolImage,
		},
		MountPath: d.MountPath,
		HostIP:    d.HostIP,
		Ports:     Ports{ProxyListen: d.ProxyListenPort},
		Timeouts: Timeouts{
			ProcessStart: d.ProcessStartTimeout.String(),
			Teardown:     d.TeardownTimeout.String(),
			RetryPoll:    d.RetryPollInterval.String(),
			Execute:      d.ExecuteTimeout.String(),
		},
		Defaults: map[string]any(d.ConfigDefaults),
	}
}

func Load(path string) (*Config, error) {
	bytes, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s\nRun 'mirrorcheck init' to create one", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks durations, ports and default proxy options.
func (c *Config) Validate() error {
	if _, err := c.timeouts(); err != nil {
		return err
	}

	ports := map[string]int{
		"proxy":        c.Ports.Proxy,
		"src":          c.Ports.Source,
		"dst":          c.Ports.Destination,
		"src_expected": c.Ports.SourceExpected,
		"dst_expected": c.Ports.DestinationExpected,
		"proxy_listen": c.Ports.ProxyListen,
		"health":       c.Ports.Health,
	}
	for name, port := range ports {
		if port < 0 || port > 65535 {
			return fmt.Errorf("ports.%s: %d is not a valid port", name, port)
		}
	}

	// Any address will do; only the options are being checked.
	if _, err := proxyconf.Render(proxyconf.Defaults(), c.Defaults, "src:6379", "dst:6379"); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	return nil
}

func (c *Config) timeouts() ([4]time.Duration, error) {
	var out [4]time.Duration
	fields := []struct {
		name  string
		value string
	}{
		{"process_start", c.Timeouts.ProcessStart},
		{"teardown", c.Timeouts.Teardown},
		{"retry_poll", c.Timeouts.RetryPoll},
		{"execute", c.Timeouts.Execute},
	}

	for i, f := range fields {
		if f.value == "" {
			continue
		}

		d, err := time.ParseDuration(f.value)
		if err != nil {
			return out, fmt.Errorf("timeouts.%s: %w", f.name, err)
		}
		if d < 0 {
			return out, fmt.Errorf("timeouts.%s: must not be negative", f.name)
		}
		out[i] = d
	}

	return out, nil
}

// Attest converts the file into harness configuration. Zero values fall back
// to the harness defaults.
func (c *Config) Attest() (*attest.Config, error) {
	timeouts, err := c.timeouts()
	if err != nil {
		return nil, err
	}

	return &attest.Config{
		RunID:                   c.RunID,
		StoreImage:              c.Images.Store,
		AccessImage:             c.Images.Access,
		ProxyImage:              c.Images.Proxy,
		ToolImage:               c.Images.Tool,
		ProxyContext:            c.Build.Proxy,
		ToolContext:             c.Build.Tool,
		MountPath:               c.MountPath,
		HostIP:                  c.HostIP,
		ProxyPort:               c.Ports.Proxy,
		SourcePort:              c.Ports.Source,
		DestinationPort:         c.Ports.Destination,
		SourceExpectedPort:      c.Ports.SourceExpected,
		DestinationExpectedPort: c.Ports.DestinationExpected,
		ProxyListenPort:         c.Ports.ProxyListen,
		HealthPort:              c.Ports.Health,
		ProcessStartTimeout:     timeouts[0],
		TeardownTimeout:         timeouts[1],
		RetryPollInterval:       timeouts[2],
		ExecuteTimeout:          timeouts[3],
		ConfigDefaults:          proxyconf.Merge(proxyconf.Defaults(), c.Defaults),
	}, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath)
}

func SaveTo(cfg *Config, path string) error {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, bytes, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
