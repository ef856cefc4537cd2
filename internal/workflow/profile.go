package workflow

import (
	_ "embed"
	"fmt"

	"github.com/antriq/api/internal/enum"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

// Profile is one tagged workflow configuration: the order types a shop may
// accept and the single legal status route a token walks. The engine is a
// plain function over this data; there is no per-business-type token variant.
type Profile struct {
	Name       string   `yaml:"name"`
	OrderTypes []string `yaml:"order_types"`
	StatusPath []string `yaml:"status_path"`
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

var profiles map[string]Profile

// businessTypeDefaults maps a shop's business type to its default profile,
// used when the shop carries no explicit override.
var businessTypeDefaults = map[string]string{
	enum.BusinessTypeRestaurant: enum.WorkflowProfileFullService,
	enum.BusinessTypeCounter:    enum.WorkflowProfileCounter,
	enum.BusinessTypeCafe:       enum.WorkflowProfileCafe,
}

func init() {
	var f profileFile
	if err := yaml.Unmarshal(profilesYAML, &f); err != nil {
		panic(fmt.Sprintf("workflow: bad embedded profiles.yaml: %v", err))
	}
	profiles = make(map[string]Profile, len(f.Profiles))
	for _, p := range f.Profiles {
		profiles[p.Name] = p
	}
}

// Resolve picks the profile for a shop: the explicit override wins, otherwise
// the business type's default.
func Resolve(businessType, override string) (Profile, error) {
	name := override
	if name == "" {
		var ok bool
		name, ok = businessTypeDefaults[businessType]
		if !ok {
			return Profile{}, fmt.Errorf("unknown business type %q", businessType)
		}
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown workflow profile %q", name)
	}
	return p, nil
}

// InitialStatus is the sole entry state of the path.
func (p Profile) InitialStatus() string {
	return p.StatusPath[0]
}

// NextStatus returns the profile's single legal next step after current.
// ok is false when current is terminal or not on the path.
func (p Profile) NextStatus(current string) (string, bool) {
	for i, s := range p.StatusPath {
		if s == current && i+1 < len(p.StatusPath) {
			return p.StatusPath[i+1], true
		}
	}
	return "", false
}

// AllowsOrderType reports whether the profile accepts the order type.
func (p Profile) AllowsOrderType(orderType string) bool {
	for _, t := range p.OrderTypes {
		if t == orderType {
			return true
		}
	}
	return false
}

// ValidTransition reports whether requested is legal from current: either the
// profile's computed next step, or the universal CANCELLED escape from any
// non-terminal state.
func (p Profile) ValidTransition(current, requested string) bool {
	if requested == enum.TokenStatusCancelled {
		return !enum.IsTerminal(current)
	}
	next, ok := p.NextStatus(current)
	return ok && next == requested
}
