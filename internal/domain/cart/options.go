package cart

// Option is one name/value pair selected on a variant, e.g. Size=M.
type Option struct {
	Name  string
	Value string
}

// VariantOptions is the ordered option list of a variant.
type VariantOptions []Option

// Lookup returns the value for name.
func (o VariantOptions) Lookup(name string) (string, bool) {
	for _, opt := range o {
		if opt.Name == name {
			return opt.Value, true
		}
	}
	return "", false
}

// Matches reports whether every option in want is present with the same value.
// Order is not significant for matching.
func (o VariantOptions) Matches(want VariantOptions) bool {
	for _, w := range want {
		v, ok := o.Lookup(w.Name)
		if !ok || v != w.Value {
			return false
		}
	}
	return true
}

// Names returns the option names in declaration order.
func (o VariantOptions) Names() []string {
	out := make([]string, 0, len(o))
	for _, opt := range o {
		out = append(out, opt.Name)
	}
	return out
}
