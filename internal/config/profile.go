package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"cassa/internal/core"
	"cassa/internal/ledger"
)

// Profile describes how a household is presented in notifications and
// mirrors: display names for the two members and a colour per entry kind.
type Profile struct {
	Names  map[core.UserID]string `json:"names" yaml:"names"`
	Colors map[ledger.Kind]string `json:"colors" yaml:"colors"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{3}([0-9a-fA-F]{3})?$`)

// DefaultProfile returns the built in names and colours.
func DefaultProfile() *Profile {
	return &Profile{
		Names: map[core.UserID]string{
			core.UserA: "User A",
			core.UserB: "User B",
		},
		Colors: map[ledger.Kind]string{
			ledger.KindIncome:   "#2ecc71",
			ledger.KindGain:     "#2ecc71",
			ledger.KindExpense:  "#ff6b6b",
			ledger.KindLoss:     "#ff6b6b",
			ledger.KindTransfer: "#3498db",
			ledger.KindSell:     "#f1c40f",
		},
	}
}

// LoadProfile reads a YAML (or JSON) profile and fills in whatever it leaves
// out from DefaultProfile. An empty path returns the default.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	// YAML is a superset of JSON, so JSON profiles load here too.
	var file Profile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	for u, n := range file.Names {
		p.Names[u] = n
	}
	for k, c := range file.Colors {
		p.Colors[k] = c
	}
	return p, nil
}

// Validate checks user keys and colour syntax.
func (p *Profile) Validate() error {
	for u := range p.Names {
		if err := u.Validate(); err != nil {
			return err
		}
	}
	for k, c := range p.Colors {
		if !hexColor.MatchString(c) {
			return fmt.Errorf("colour for %s must be a hex value, got %q", k, c)
		}
	}
	return nil
}

// Name returns the display name of user.
func (p *Profile) Name(user core.UserID) string {
	if n, ok := p.Names[user]; ok && n != "" {
		return n
	}
	return string(user)
}

// Color returns the colour of kind, grey when none is set.
func (p *Profile) Color(kind ledger.Kind) string {
	if c, ok := p.Colors[kind]; ok {
		return c
	}
	return "#666666"
}
