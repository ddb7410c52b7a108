package configtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperty_Validate(t *testing.T) {
	attrs := &StackPropertyAttributes{
		Name:   "memory",
		Site:   "yarn-site",
		Bounds: Bounds{AttrMinimum: "256", AttrMaximum: "8192"},
	}
	attrs.GroupBoundSet("Big")[AttrMaximum] = "65536"

	tests := []struct {
		name     string
		value    string
		required bool
		attrs    *StackPropertyAttributes
		group    string
		want     string
	}{
		{name: "empty required", value: " ", required: true, want: "This is required"},
		{name: "empty optional", value: "", want: ""},
		{name: "no attributes", value: "1", want: ""},
		{name: "below minimum", value: "128", attrs: attrs, want: "Value is less than the recommended minimum of 256"},
		{name: "above maximum", value: "16384", attrs: attrs, want: "Value is greater than the recommended maximum of 8192"},
		{name: "group maximum", value: "16384", attrs: attrs, group: "Big", want: ""},
		{name: "not numeric", value: "auto", attrs: attrs, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Property{Value: tt.value, IsRequired: tt.required}
			ok := p.Validate(tt.attrs, tt.group)
			assert.Equal(t, tt.want, p.ErrorMessage)
			assert.Equal(t, tt.want == "", ok)
		})
	}
}

func TestProperty_Overrides(t *testing.T) {
	p := &Property{Name: "memory", Filename: "yarn-site.xml", Value: "512"}
	o := p.SetOverride("Big", "4096", true)
	assert.True(t, o.IsNotSaved)
	assert.Same(t, o, p.SetOverride("Big", "8192", false))
	assert.Equal(t, "8192", o.Value)
	assert.True(t, o.IsNotSaved, "existing override keeps its saved state")

	assert.True(t, p.RemoveOverride(o))
	assert.Nil(t, p.Override("Big"))
	assert.False(t, p.RemoveOverride(o))
}

func TestStackPropertyAttributes_Effective(t *testing.T) {
	attrs := &StackPropertyAttributes{Name: "memory", Site: "yarn-site", Bounds: Bounds{AttrMinimum: "1", AttrMaximum: "10"}}
	assert.Equal(t, "memory_yarn-site", attrs.ID())

	attrs.GroupBoundSet("g")[AttrMaximum] = "20"
	assert.Equal(t, Bounds{AttrMinimum: "1", AttrMaximum: "10"}, attrs.Effective(""))
	assert.Equal(t, Bounds{AttrMinimum: "1", AttrMaximum: "20"}, attrs.Effective("g"))

	v, ok := attrs.Effective("g").Float(AttrMaximum)
	assert.True(t, ok)
	assert.InDelta(t, 20.0, v, 0)
	_, ok = Bounds{}.Float(AttrMinimum)
	assert.False(t, ok)
}
