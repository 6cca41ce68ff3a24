package filter

// Latch records who last decided the subnetwork selection.
type Latch int

const (
	// LatchUnset means no subnetwork list has been seen yet; everything passes.
	LatchUnset Latch = iota
	// LatchDefaulted means the system selected every known subnetwork.
	LatchDefaulted
	// LatchUserSet means the user made an explicit choice. Defaults never override it.
	LatchUserSet
)

func (l Latch) String() string {
	switch l {
	case LatchDefaulted:
		return "defaulted"
	case LatchUserSet:
		return "user_set"
	default:
		return "unset"
	}
}

// SubnetworkFilter is the opt-out subnetwork predicate. Locations without a
// subnetwork always pass. Others pass unless the user excluded them: a
// subnetwork is only ever hidden by an explicit toggle or by DeselectAll, never
// because it was absent from the option list when the user made a choice.
type SubnetworkFilter struct {
	latch Latch
	// deselected is set by DeselectAll; exceptions then lists the subnetworks
	// toggled back in. Otherwise exceptions lists the excluded ones.
	deselected bool
	exceptions Set
}

// Latch returns the current latch state.
func (f *SubnetworkFilter) Latch() Latch { return f.latch }

// Allows reports whether a location with the given subnetwork passes.
func (f *SubnetworkFilter) Allows(subnetwork string) bool {
	if subnetwork == "" || f.latch != LatchUserSet {
		return true
	}
	return f.exceptions.Has(subnetwork) == f.deselected
}

// Selected returns the members of names that currently pass, in order.
func (f *SubnetworkFilter) Selected(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if f.Allows(n) {
			out = append(out, n)
		}
	}
	return out
}

// ApplyDefaults selects every subnetwork once the first non-empty list is seen,
// unless the user already chose. Subnetworks seen later are selected too. It
// reports whether the latch moved.
func (f *SubnetworkFilter) ApplyDefaults(all []string) bool {
	if f.latch != LatchUnset || len(all) == 0 {
		return false
	}
	f.latch = LatchDefaulted
	return true
}

// Toggle flips one subnetwork.
func (f *SubnetworkFilter) Toggle(name string) {
	if f.exceptions == nil {
		f.exceptions = Set{}
	}
	f.exceptions.Toggle(name)
	f.latch = LatchUserSet
}

// SelectAll includes every subnetwork, including ones not seen yet.
func (f *SubnetworkFilter) SelectAll() {
	f.deselected = false
	f.exceptions = Set{}
	f.latch = LatchUserSet
}

// DeselectAll excludes every subnetwork; locations without one still pass.
func (f *SubnetworkFilter) DeselectAll() {
	f.deselected = true
	f.exceptions = Set{}
	f.latch = LatchUserSet
}

// Clone returns an independent copy.
func (f *SubnetworkFilter) Clone() SubnetworkFilter {
	return SubnetworkFilter{latch: f.latch, deselected: f.deselected, exceptions: f.exceptions.Clone()}
}
