package comet

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultTimeout is the idle timeout applied when the comet extension's
// config element omits the "timeout" attribute.
const defaultTimeout = 20 * time.Second

// Config is the decoded form of the "comet" extension config element
// (spec.md §6): a per-request idle timeout, and an optional cap on the
// number of concurrently live virtual channels.
type Config struct {
	// Timeout is how long a wait-phase request blocks before replying with
	// whatever ENDED notices it has and no events.
	Timeout time.Duration `yaml:"timeout"`

	// MaxVirtualChannels caps the number of concurrently live channels.
	// Nil means unbounded.
	MaxVirtualChannels *int `yaml:"max_virtual_channels"`
}

// DefaultConfig returns the config used when the host supplies no "comet"
// extension element at all: a 20s timeout and no channel cap.
func DefaultConfig() Config {
	return Config{Timeout: defaultTimeout}
}

// rawConfig mirrors the wire attributes exactly (timeout as a float number
// of seconds, max_virtual_channels as a scalar that may be an empty string
// meaning "unbounded" or a non-negative integer) before they are resolved
// into Config's Go-native types.
type rawConfig struct {
	Timeout            *float64         `yaml:"timeout"`
	MaxVirtualChannels *maxChannelsAttr `yaml:"max_virtual_channels"`
}

// maxChannelsAttr decodes the "max_virtual_channels" attribute, which per
// spec.md §6 is either an empty string ("unbounded") or a non-negative
// integer (the cap).
type maxChannelsAttr struct {
	unbounded bool
	value     int
}

// UnmarshalYAML accepts either a bare empty scalar (unbounded) or a
// non-negative integer scalar (the cap), rejecting anything else as a
// config error, per spec.md §6's "malformed values are a configuration
// error."
func (m *maxChannelsAttr) UnmarshalYAML(node *yaml.Node) error {
	text := strings.TrimSpace(node.Value)
	if text == "" {
		m.unbounded = true
		return nil
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("comet: max_virtual_channels: invalid value %q", node.Value)
	}
	if v < 0 {
		return fmt.Errorf("comet: max_virtual_channels: must be non-negative, got %d", v)
	}
	m.unbounded = false
	m.value = v
	return nil
}

// ParseConfig decodes a "comet" extension config element from YAML,
// applying the defaults and validation rules of spec.md §6. A host that
// loads its config from some other format (XML attributes, in the
// Ocsigen original) is expected to normalize into this same YAML shape, or
// to construct a Config directly and skip ParseConfig entirely.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}

	// KnownFields rejects unrecognized attributes instead of silently
	// dropping them, per spec.md §6/§7: a misspelled or renamed attribute
	// must surface as a configuration error, not a no-op.
	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("comet: parsing config: %w", err)
	}

	if raw.Timeout != nil {
		if *raw.Timeout <= 0 {
			return Config{}, fmt.Errorf("comet: timeout must be positive, got %v", *raw.Timeout)
		}
		cfg.Timeout = time.Duration(*raw.Timeout * float64(time.Second))
	}

	if raw.MaxVirtualChannels != nil && !raw.MaxVirtualChannels.unbounded {
		v := raw.MaxVirtualChannels.value
		cfg.MaxVirtualChannels = &v
	}

	return cfg, nil
}
