package configtree

import (
	"fmt"
	"strconv"
	"strings"
)

// Property is a single editable configuration value.
type Property struct {
	Name        string
	DisplayName string
	// Filename is the config file the property belongs to, e.g. "yarn-site.xml".
	Filename    string
	ServiceName string
	Category    string

	// Value is the current editable value.
	Value string
	// SavedValue is the last persisted value; nil when never saved.
	SavedValue *string
	// InitialValue is the baseline captured when the editing session started.
	InitialValue *string
	// RecommendedValue is the last server suggestion, used as a display marker.
	RecommendedValue *string

	// IsNotSaved is true when the property exists only in the current session.
	IsNotSaved bool
	IsRequired bool
	// ErrorMessage is set by Validate.
	ErrorMessage string

	Overrides []*Override
}

// Override is the value of a property inside a non-default config group.
type Override struct {
	Group            string
	Value            string
	SavedValue       *string
	InitialValue     *string
	RecommendedValue *string
	// IsNotSaved is true when the override exists only in the current session.
	IsNotSaved bool
}

// FileTag returns the property's file tag.
func (p *Property) FileTag() string {
	return FileTag(p.Filename)
}

// Override returns the override for group, or nil.
func (p *Property) Override(group string) *Override {
	for _, o := range p.Overrides {
		if o.Group == group {
			return o
		}
	}
	return nil
}

// SetOverride creates or updates the override for group and returns it.
func (p *Property) SetOverride(group, value string, notSaved bool) *Override {
	if o := p.Override(group); o != nil {
		o.Value = value
		return o
	}
	o := &Override{Group: group, Value: value, IsNotSaved: notSaved}
	p.Overrides = append(p.Overrides, o)
	return o
}

// RemoveOverride removes o and reports whether it was present.
func (p *Property) RemoveOverride(o *Override) bool {
	for i, existing := range p.Overrides {
		if existing == o {
			p.Overrides = append(p.Overrides[:i], p.Overrides[i+1:]...)
			return true
		}
	}
	return false
}

// Validate checks the value against required-ness and numeric bounds and
// records the outcome in ErrorMessage. group selects per-group bounds.
func (p *Property) Validate(attrs *StackPropertyAttributes, group string) bool {
	p.ErrorMessage = validateValue(p.Value, p.IsRequired, attrs, group)
	return p.ErrorMessage == ""
}

func validateValue(value string, required bool, attrs *StackPropertyAttributes, group string) string {
	if strings.TrimSpace(value) == "" {
		if required {
			return "This is required"
		}
		return ""
	}
	if attrs == nil {
		return ""
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return ""
	}
	bounds := attrs.Effective(group)
	if minimum, ok := bounds.Float(AttrMinimum); ok && num < minimum {
		return fmt.Sprintf("Value is less than the recommended minimum of %s", bounds[AttrMinimum])
	}
	if maximum, ok := bounds.Float(AttrMaximum); ok && num > maximum {
		return fmt.Sprintf("Value is greater than the recommended maximum of %s", bounds[AttrMaximum])
	}
	return ""
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Deref returns *s or "" when s is nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// EqualPtr reports whether a and b are both nil or point to equal strings.
func EqualPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ClonePtr returns a copy of s that does not alias it.
func ClonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
