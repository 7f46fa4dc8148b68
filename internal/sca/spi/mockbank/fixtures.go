package mockbank

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
	"github.com/aussiebroadwan/scagate/pkg/cryptox"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// Fixtures is the YAML document describing the bank's PSUs.
type Fixtures struct {
	MaxAttempts      int          `yaml:"maxAttempts"`
	LowValueLimit    string       `yaml:"lowValueLimit"`
	ConfirmationCode string       `yaml:"confirmationCode"`
	Psus             []PsuFixture `yaml:"psus"`
}

type PsuFixture struct {
	ID           string          `yaml:"id"`
	Password     string          `yaml:"password"`
	PasswordHash string          `yaml:"passwordHash"`
	Blocked      bool            `yaml:"blocked"`
	Methods      []MethodFixture `yaml:"methods"`
}

type MethodFixture struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	Name       string `yaml:"name"`
	Decoupled  bool   `yaml:"decoupled"`
	TAN        string `yaml:"tan"`        // static code for SMS style methods
	TOTPSecret string `yaml:"totpSecret"` // base32, RFC 6238 codes
}

func (m MethodFixture) scaMethod() domain.ScaMethod {
	return domain.ScaMethod{ID: m.ID, Type: m.Type, Name: m.Name, Decoupled: m.Decoupled}
}

// ParseFixtures decodes a fixtures document.
func ParseFixtures(raw []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Fixtures{}, fmt.Errorf("mockbank: parse fixtures: %w", err)
	}
	return f, nil
}

// Load builds a bank from the fixtures file at path, or from the built in
// fixtures when path is empty.
func Load(path string) (*Bank, error) {
	raw := defaultFixtures
	if path != "" {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("mockbank: read fixtures: %w", err)
		}
	}
	f, err := ParseFixtures(raw)
	if err != nil {
		return nil, err
	}
	return New(f)
}

type psu struct {
	id           string
	passwordHash string
	blocked      bool
	methods      []MethodFixture
}

func (p psu) method(id string) (MethodFixture, bool) {
	for _, m := range p.methods {
		if m.ID == id {
			return m, true
		}
	}
	return MethodFixture{}, false
}

func (f Fixtures) compile() (map[string]psu, decimal.Decimal, error) {
	limit := decimal.Zero
	if f.LowValueLimit != "" {
		var err error
		if limit, err = decimal.NewFromString(f.LowValueLimit); err != nil {
			return nil, limit, fmt.Errorf("mockbank: lowValueLimit: %w", err)
		}
	}

	psus := make(map[string]psu, len(f.Psus))
	for _, p := range f.Psus {
		if p.ID == "" {
			return nil, limit, errors.New("mockbank: psu without id")
		}
		if _, dup := psus[p.ID]; dup {
			return nil, limit, fmt.Errorf("mockbank: duplicate psu %q", p.ID)
		}

		hash := p.PasswordHash
		if hash != "" {
			if _, err := cryptox.ParsePasswordHash(hash); err != nil {
				return nil, limit, fmt.Errorf("mockbank: passwordHash for %q: %w", p.ID, err)
			}
		} else {
			if p.Password == "" {
				return nil, limit, fmt.Errorf("mockbank: psu %q has no password", p.ID)
			}
			var err error
			if hash, err = cryptox.HashPassword(p.Password); err != nil {
				return nil, limit, fmt.Errorf("mockbank: hash password for %q: %w", p.ID, err)
			}
		}

		for _, m := range p.Methods {
			if !m.Decoupled && m.TAN == "" && m.TOTPSecret == "" {
				return nil, limit, fmt.Errorf("mockbank: method %s/%s needs a tan or totpSecret", p.ID, m.ID)
			}
		}
		psus[p.ID] = psu{id: p.ID, passwordHash: hash, blocked: p.Blocked, methods: p.Methods}
	}
	return psus, limit, nil
}
