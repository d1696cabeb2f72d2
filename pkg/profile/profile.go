// Package profile loads accounting profiles: YAML documents carrying the
// chart of accounts, depreciation defaults, admission rules, and the schema
// gate for inbound attribution records.
package profile

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
	"github.com/Mindburn-Labs/icl/core/pkg/policy"
)

// Profile is one accounting profile. Account entries override the built-in
// chart position for their type; types not listed keep the defaults.
type Profile struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`

	Defaults Defaults          `yaml:"defaults" json:"defaults"`
	Accounts []finance.Account `yaml:"accounts,omitempty" json:"accounts,omitempty"`
	Rules    []policy.Rule     `yaml:"rules,omitempty" json:"rules,omitempty"`

	// SchemaConstraint bounds the record versions the integration surface
	// accepts, e.g. ">= 1.0.0 < 2.0.0". Empty means any version.
	SchemaConstraint string `yaml:"schema_constraint,omitempty" json:"schema_constraint,omitempty"`
}

// Defaults seed capitalization requests that leave a field empty.
type Defaults struct {
	Currency         string                     `yaml:"currency,omitempty" json:"currency,omitempty"`
	Method           capital.DepreciationMethod `yaml:"method,omitempty" json:"method,omitempty"`
	UsefulLifeMonths int                        `yaml:"useful_life_months,omitempty" json:"useful_life_months,omitempty"`
	RateMultiplier   float64                    `yaml:"rate_multiplier,omitempty" json:"rate_multiplier,omitempty"`

	// RoundingScale is the scale the profile was authored against. The
	// ledger scale is fixed; a profile declaring a different one is
	// rejected at load.
	RoundingScale int32 `yaml:"rounding_scale,omitempty" json:"rounding_scale,omitempty"`
}

// Default returns the profile used when no profile path is configured.
func Default() *Profile {
	return &Profile{
		Name:    "default",
		Version: "1.0.0",
		Defaults: Defaults{
			Currency:         "USD",
			Method:           capital.MethodLinear,
			UsefulLifeMonths: 36,
		},
	}
}

// Load reads and validates a profile YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", path, err)
	}

	return &p, nil
}

// Validate checks the profile's version, defaults, account overrides, and
// rule expressions. Rules are compiled once here so a bad expression fails
// at load rather than on the first admission.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile has no name")
	}
	if _, err := semver.NewVersion(p.Version); err != nil {
		return fmt.Errorf("invalid profile version %q: %w", p.Version, err)
	}
	if p.SchemaConstraint != "" {
		if _, err := semver.NewConstraint(p.SchemaConstraint); err != nil {
			return fmt.Errorf("invalid schema constraint %q: %w", p.SchemaConstraint, err)
		}
	}

	if c := p.Defaults.Currency; c != "" {
		if err := finance.ValidateCurrency(c); err != nil {
			return err
		}
	}
	if m := p.Defaults.Method; m != "" && !capital.ValidMethod(m) {
		return fmt.Errorf("unknown default method %q", m)
	}
	if p.Defaults.UsefulLifeMonths < 0 {
		return fmt.Errorf("negative default useful life %d", p.Defaults.UsefulLifeMonths)
	}
	if p.Defaults.RateMultiplier < 0 {
		return fmt.Errorf("negative rate multiplier %v", p.Defaults.RateMultiplier)
	}
	if s := p.Defaults.RoundingScale; s != 0 && s != finance.Scale {
		return fmt.Errorf("profile requires rounding scale %d, ledger uses %d", s, finance.Scale)
	}

	for _, a := range p.Accounts {
		if a.Code == "" || a.Name == "" {
			return fmt.Errorf("account override for type %s missing code or name", a.Type)
		}
		if _, err := finance.DefaultChart().Account(a.Type); err != nil {
			return fmt.Errorf("account override %s: %w", a.Code, err)
		}
	}

	if _, err := policy.NewEngine(p.Rules); err != nil {
		return err
	}

	return nil
}

// Chart returns the built-in chart with this profile's overrides applied.
func (p *Profile) Chart() finance.Chart {
	chart := finance.DefaultChart()
	for _, a := range p.Accounts {
		chart[a.Type] = a
	}
	return chart
}

// Guardrails compiles the profile's admission rules.
func (p *Profile) Guardrails() (*policy.Engine, error) {
	return policy.NewEngine(p.Rules)
}

// AllowsSchema checks an inbound record version against the profile's
// schema constraint. No constraint means any version is accepted.
func (p *Profile) AllowsSchema(version string) error {
	if p.SchemaConstraint == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(p.SchemaConstraint)
	if err != nil {
		return fmt.Errorf("invalid schema constraint %q: %w", p.SchemaConstraint, err)
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid record schema version %q: %w", version, err)
	}

	if !constraint.Check(v) {
		return fmt.Errorf("record schema %s outside supported range %s", version, p.SchemaConstraint)
	}

	return nil
}
