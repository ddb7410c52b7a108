package configtree

import (
	"strconv"
	"strings"
)

// Attribute names carried in recommendation property_attributes.
const (
	AttrMinimum       = "minimum"
	AttrMaximum       = "maximum"
	AttrIncrementStep = "increment_step"
	// AttrDelete signals that the property should not exist.
	AttrDelete = "delete"
)

// Bounds maps an attribute name to its value.
type Bounds map[string]string

// Float parses the named bound as a number.
func (b Bounds) Float(name string) (float64, bool) {
	raw, ok := b[name]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// StackPropertyAttributes holds value bounds of a stack property, with optional
// per-group bound sets for non-default groups.
type StackPropertyAttributes struct {
	Name string
	Site string
	// Bounds is the global bound set.
	Bounds Bounds
	// GroupBounds is created lazily per non-default group name.
	GroupBounds map[string]Bounds
}

// AttributeID builds the key used to look up StackPropertyAttributes.
func AttributeID(name, fileTag string) string {
	return name + "_" + fileTag
}

// ID returns the attribute set's lookup key.
func (a *StackPropertyAttributes) ID() string {
	return AttributeID(a.Name, a.Site)
}

// GroupBoundSet returns the bound set for group, creating it when missing.
func (a *StackPropertyAttributes) GroupBoundSet(group string) Bounds {
	if a.GroupBounds == nil {
		a.GroupBounds = make(map[string]Bounds)
	}
	b, ok := a.GroupBounds[group]
	if !ok {
		b = make(Bounds)
		a.GroupBounds[group] = b
	}
	return b
}

// Effective returns the global bounds overlaid with the group's bounds.
func (a *StackPropertyAttributes) Effective(group string) Bounds {
	out := make(Bounds, len(a.Bounds))
	for k, v := range a.Bounds {
		out[k] = v
	}
	if group == "" {
		return out
	}
	for k, v := range a.GroupBounds[group] {
		out[k] = v
	}
	return out
}
