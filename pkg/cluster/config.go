package cluster

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/primelattice/tessera/pkg/math/modular"
	"github.com/primelattice/tessera/pkg/party"
)

var (
	// ErrNoParties is returned for configurations without members.
	ErrNoParties = errors.New("cluster: no parties configured")
	// ErrDuplicateParty is returned when a member id appears twice.
	ErrDuplicateParty = errors.New("cluster: duplicate party id")
)

// Duration wraps time.Duration so timeouts read as "5s" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// PartyConfig is one cluster member.
type PartyConfig struct {
	ID      string `toml:"id"`
	Address string `toml:"address"`
}

// Config is the on-disk cluster description.
type Config struct {
	Name      string        `toml:"name"`
	Self      string        `toml:"self"`
	Prime     string        `toml:"prime"` // hex, big-endian
	Threshold uint          `toml:"threshold"`
	Timeout   Duration      `toml:"timeout"`
	Parties   []PartyConfig `toml:"parties"`
}

// DefaultTimeout bounds every suspension point of a protocol instance when
// the configuration does not say otherwise.
const DefaultTimeout = 10 * time.Second

// LoadConfig reads and validates a cluster configuration file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("cluster: reading config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks internal consistency and fills defaults.
func (c *Config) Validate() error {
	if len(c.Parties) == 0 {
		return ErrNoParties
	}
	seen := make(map[string]struct{}, len(c.Parties))
	for _, p := range c.Parties {
		if !party.ID(p.ID).Valid() {
			return party.ErrInvalidID
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateParty, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if _, ok := seen[c.Self]; !ok {
		return fmt.Errorf("%w: %s", ErrNotMember, c.Self)
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
	if 2*c.Threshold >= uint(len(c.Parties)) {
		return fmt.Errorf("cluster: threshold %d too large for %d parties", c.Threshold, len(c.Parties))
	}
	return nil
}

// Members returns the sorted member list.
func (c *Config) Members() party.IDSlice {
	ids := make([]party.ID, 0, len(c.Parties))
	for _, p := range c.Parties {
		ids = append(ids, party.ID(p.ID))
	}
	return party.NewIDSlice(ids)
}

// Membership builds the local membership view.
func (c *Config) Membership() (*Membership, error) {
	return NewMembership(party.ID(c.Self), c.Members())
}

// Modulus parses the configured prime.
func (c *Config) Modulus() (*modular.Modulus, error) {
	raw, err := hex.DecodeString(c.Prime)
	if err != nil {
		return nil, fmt.Errorf("cluster: parsing prime: %w", err)
	}
	return modular.ModulusFromBytes(raw)
}

// Address returns the configured transport address of id.
func (c *Config) Address(id party.ID) (string, bool) {
	for _, p := range c.Parties {
		if party.ID(p.ID) == id {
			return p.Address, true
		}
	}
	return "", false
}
