package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/backmassage/histpack/internal/fault"
)

// Component is one model component of a case archive.
type Component string

const (
	Atm  Component = "atm"
	Lnd  Component = "lnd"
	Rof  Component = "rof"
	Ocn  Component = "ocn"
	Ice  Component = "ice"
	Rest Component = "rest"
)

// componentOrder fixes the scan and emission order.
var componentOrder = []Component{Atm, Lnd, Rof, Ocn, Ice, Rest}

// streamPatterns holds the history-stream rule of each component.
var streamPatterns = map[Component]string{
	Atm: `h\d+`,
	Lnd: `h\d+`,
	Rof: `h\d+`,
	Ice: `h\d*`,
	Ocn: `h(?:\.[a-z0-9_]+)*`,
}

// ParseComponent validates a component name.
func ParseComponent(s string) (Component, error) {
	c := Component(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range componentOrder {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown component %q", fault.ErrUsage, s)
}

// Rank is the component's position in scan order.
func (c Component) Rank() int {
	for i, known := range componentOrder {
		if c == known {
			return i
		}
	}
	return len(componentOrder)
}

// Spec selects a component and the model that writes it, e.g. "ice:cice".
type Spec struct {
	Component Component
	Model     string
}

// ParseSpec parses "component:model". The rest component needs no model.
func ParseSpec(s string) (Spec, error) {
	comp, model, _ := strings.Cut(s, ":")
	c, err := ParseComponent(comp)
	if err != nil {
		return Spec{}, err
	}
	model = strings.TrimSpace(model)
	if c != Rest && model == "" {
		return Spec{}, fmt.Errorf("%w: component %q needs a model name (%s:<model>)", fault.ErrUsage, c, c)
	}
	if strings.ContainsAny(model, "./ ") {
		return Spec{}, fmt.Errorf("%w: invalid model name %q", fault.ErrUsage, model)
	}
	return Spec{Component: c, Model: model}, nil
}

func (s Spec) String() string {
	if s.Model == "" {
		return string(s.Component)
	}
	return string(s.Component) + ":" + s.Model
}

// SortSpecs orders specs by component rank then model, dropping duplicates.
func SortSpecs(specs []Spec) []Spec {
	seen := make(map[Spec]bool, len(specs))
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return specLess(out[i], out[j]) })
	return out
}

func specLess(a, b Spec) bool {
	if a.Component.Rank() != b.Component.Rank() {
		return a.Component.Rank() < b.Component.Rank()
	}
	return a.Model < b.Model
}

// namePattern matches <case>.<model>.<stream>.<date>.nc for one spec. The
// case prefix may itself contain dots.
func namePattern(s Spec) *regexp.Regexp {
	return regexp.MustCompile(`^(.+)\.` + regexp.QuoteMeta(s.Model) + `\.(` +
		streamPatterns[s.Component] + `)\.(\d{4,6}(?:-\d{2}(?:-\d{2}(?:-\d{5})?)?)?)\.nc$`)
}
