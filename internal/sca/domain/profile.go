package domain

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RedirectIDPlaceholder is substituted in AspspProfile.RedirectURL.
const RedirectIDPlaceholder = "{redirect-id}"

// AspspProfile is the bank-side configuration that shapes new authorisations.
type AspspProfile struct {
	// ScaApproaches in order of preference; the first is the default.
	ScaApproaches []ScaApproach `yaml:"scaApproaches"`

	// RedirectURL is the PSU facing page, must contain {redirect-id}.
	RedirectURL string `yaml:"redirectUrl"`

	// NokRedirectURL is where the PSU lands when something went wrong and
	// the TPP did not provide its own.
	NokRedirectURL string `yaml:"nokRedirectUrl"`

	RedirectURLExpiry   time.Duration `yaml:"redirectUrlExpiry"`
	AuthorisationExpiry time.Duration `yaml:"authorisationExpiry"`

	// Disabled authorisation types cannot be started.
	Disabled []AuthorisationType `yaml:"disabled"`
}

// DefaultProfile is used when no profile file is configured.
func DefaultProfile() AspspProfile {
	return AspspProfile{
		ScaApproaches:       []ScaApproach{ApproachRedirect, ApproachEmbedded, ApproachDecoupled},
		RedirectURL:         "http://localhost:8080/psu-api/v1/redirect/" + RedirectIDPlaceholder,
		NokRedirectURL:      "http://localhost:8080/psu-api/v1/nok",
		RedirectURLExpiry:   5 * time.Minute,
		AuthorisationExpiry: 30 * time.Minute,
	}
}

// LoadProfile reads a YAML profile, filling anything missing from
// DefaultProfile.
func LoadProfile(path string) (AspspProfile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return AspspProfile{}, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return AspspProfile{}, fmt.Errorf("parse profile: %w", err)
	}
	return p, p.Validate()
}

// Validate checks the profile is usable.
func (p AspspProfile) Validate() error {
	if len(p.ScaApproaches) == 0 {
		return errors.New("profile: at least one sca approach is required")
	}
	for _, a := range p.ScaApproaches {
		if !a.IsKnown() {
			return fmt.Errorf("profile: unknown sca approach %q", a)
		}
	}
	if p.Supports(ApproachRedirect) && !strings.Contains(p.RedirectURL, RedirectIDPlaceholder) {
		return fmt.Errorf("profile: redirectUrl must contain %s", RedirectIDPlaceholder)
	}
	if p.RedirectURLExpiry <= 0 || p.AuthorisationExpiry <= 0 {
		return errors.New("profile: expiries must be positive")
	}
	return nil
}

// Supports reports whether the bank offers approach a.
func (p AspspProfile) Supports(a ScaApproach) bool {
	for _, s := range p.ScaApproaches {
		if s == a {
			return true
		}
	}
	return false
}

// Enabled reports whether authorisations of type t may be started.
func (p AspspProfile) Enabled(t AuthorisationType) bool {
	for _, d := range p.Disabled {
		if d == t {
			return false
		}
	}
	return true
}

// ChooseApproach picks the approach for a new authorisation. A TPP preference
// is honoured when the bank supports it.
func (p AspspProfile) ChooseApproach(preferred ScaApproach) ScaApproach {
	if preferred != "" && p.Supports(preferred) {
		return preferred
	}
	return p.ScaApproaches[0]
}

// RedirectLink renders the PSU facing URL for a redirect id.
func (p AspspProfile) RedirectLink(redirectID string) string {
	return strings.ReplaceAll(p.RedirectURL, RedirectIDPlaceholder, redirectID)
}
