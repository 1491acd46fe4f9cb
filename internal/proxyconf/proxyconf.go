// Package proxyconf synthesizes the migration proxy's configuration file from
// default options, per-scenario overrides, and the store addresses resolved
// once the store containers are running.
package proxyconf

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Option names accepted in scenario overrides.
const (
	DeleteOnGet = "delete_on_get"
	DeleteOnSet = "delete_on_set"
	Password    = "password"
	SrcPassword = "src_password"
	DstPassword = "dst_password"
)

var (
	// ErrUnresolved is returned when an option or address has no value.
	ErrUnresolved = errors.New("unresolved placeholder")
	// ErrUnknownOption is returned for option names the proxy does not read.
	ErrUnknownOption = errors.New("unknown option")
)

var boolOptions = []string{DeleteOnGet, DeleteOnSet}
var stringOptions = []string{Password, SrcPassword, DstPassword}

// Options maps option names to literal values.
type Options map[string]any

// Defaults returns a fresh copy of the default options.
func Defaults() Options {
	return Options{
		DeleteOnGet: true,
		DeleteOnSet: false,
		Password:    "",
		SrcPassword: "",
		DstPassword: "",
	}
}

// Merge returns a new Options with overrides applied over defaults key by
// key. Neither input is modified.
func Merge(defaults, overrides Options) Options {
	merged := make(Options, len(defaults)+len(overrides))
	maps.Copy(merged, defaults)
	maps.Copy(merged, overrides)

	return merged
}

// String returns the option under key coerced to a string, or "" when it is
// missing or not a scalar.
func (o Options) String(key string) string {
	v, err := stringOption(o, key)
	if err != nil {
		return ""
	}

	return v
}

// Endpoint is a backing store the proxy connects to.
type Endpoint struct {
	Addr     string `toml:"Addr"`
	Password string `toml:"Password"`
}

// Document is the configuration file read by the proxy at startup.
type Document struct {
	DeleteOnGet bool     `toml:"DeleteOnGet"`
	DeleteOnSet bool     `toml:"DeleteOnSet"`
	Password    string   `toml:"Password"`
	Source      Endpoint `toml:"Source"`
	Destination Endpoint `toml:"Destination"`
}

// Render merges overrides over defaults and fills in the store addresses.
func Render(defaults, overrides Options, srcAddr, dstAddr string) (*Document, error) {
	merged := Merge(defaults, overrides)

	for _, key := range slices.Sorted(maps.Keys(merged)) {
		if !slices.Contains(boolOptions, key) && !slices.Contains(stringOptions, key) {
			return nil, fmt.Errorf("%w %q", ErrUnknownOption, key)
		}
	}

	bools := make(map[string]bool, len(boolOptions))
	for _, key := range boolOptions {
		v, err := boolOption(merged, key)
		if err != nil {
			return nil, err
		}
		bools[key] = v
	}

	strs := make(map[string]string, len(stringOptions))
	for _, key := range stringOptions {
		v, err := stringOption(merged, key)
		if err != nil {
			return nil, err
		}
		strs[key] = v
	}

	if srcAddr == "" {
		return nil, fmt.Errorf("%w: src_addr", ErrUnresolved)
	}

	if dstAddr == "" {
		return nil, fmt.Errorf("%w: dst_addr", ErrUnresolved)
	}

	return &Document{
		DeleteOnGet: bools[DeleteOnGet],
		DeleteOnSet: bools[DeleteOnSet],
		Password:    strs[Password],
		Source:      Endpoint{Addr: srcAddr, Password: strs[SrcPassword]},
		Destination: Endpoint{Addr: dstAddr, Password: strs[DstPassword]},
	}, nil
}

func boolOption(opts Options, key string) (bool, error) {
	raw, ok := opts[key]
	if !ok || raw == nil {
		return false, fmt.Errorf("%w: %s", ErrUnresolved, key)
	}

	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("option %s: %q is not a boolean", key, v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("option %s: %v is not a boolean", key, raw)
	}
}

func stringOption(opts Options, key string) (string, error) {
	raw, ok := opts[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, key)
	}

	switch v := raw.(type) {
	case string:
		return v, nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("option %s: %v is not a string", key, raw)
	}
}

// Encode serializes the document as TOML.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode proxy config: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode parses a TOML configuration file.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode proxy config: %w", err)
	}

	return &doc, nil
}
