package ecmodel

import "strings"

// ListAmendMode selects how a tweaked list-valued parameter combines
// with the existing list (spec.md §4.4 "Tweaking").
type ListAmendMode int

const (
	// ListReplace discards the existing list entirely.
	ListReplace ListAmendMode = iota
	// ListPrepend inserts the new values before the existing list.
	ListPrepend
	// ListAppend inserts the new values after the existing list.
	ListAppend
)

// ListAmendment describes one `key=v1,v2` amendment for a list-valued
// parameter (patches, exts_list, ...).
type ListAmendment struct {
	Values []string
	Mode   ListAmendMode
}

// ParseListAmendment decodes the CLI convention: an empty head token
// ("=,v1,v2") means prepend; an empty tail token ("=v1,v2,") means
// append; anything else replaces the list outright.
func ParseListAmendment(raw string) ListAmendment {
	tokens := strings.Split(raw, ",")
	switch {
	case len(tokens) > 1 && tokens[0] == "":
		return ListAmendment{Values: nonEmpty(tokens[1:]), Mode: ListPrepend}
	case len(tokens) > 1 && tokens[len(tokens)-1] == "":
		return ListAmendment{Values: nonEmpty(tokens[:len(tokens)-1]), Mode: ListAppend}
	default:
		return ListAmendment{Values: nonEmpty(tokens), Mode: ListReplace}
	}
}

func nonEmpty(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func applyAmendment(existing []string, amend ListAmendment) []string {
	switch amend.Mode {
	case ListPrepend:
		return append(append([]string(nil), amend.Values...), existing...)
	case ListAppend:
		return append(append([]string(nil), existing...), amend.Values...)
	default:
		return append([]string(nil), amend.Values...)
	}
}

// TweakSpec names the amendments for Tweak. Pointer fields are left nil
// to mean "unchanged" so that Tweak(ec, TweakSpec{}) is the identity
// (spec.md §8 invariant 5).
type TweakSpec struct {
	Name          *string
	Version       *string
	VersionSuffix *string
	Toolchain     *Toolchain
	Patches       *ListAmendment
	SourceURLs    *ListAmendment
	Sources       *ListAmendment
}

// IsEmpty reports whether spec carries no amendments at all.
func (s TweakSpec) IsEmpty() bool {
	return s.Name == nil && s.Version == nil && s.VersionSuffix == nil &&
		s.Toolchain == nil && s.Patches == nil && s.SourceURLs == nil && s.Sources == nil
}

// Tweak produces a new EC varying one or more of name, version,
// toolchain, versionsuffix, or the listed list-valued parameters,
// without mutating ec.
func Tweak(ec *EC, spec TweakSpec) *EC {
	out := ec.Clone()

	if spec.Name != nil {
		out.Name = *spec.Name
	}
	if spec.Version != nil {
		out.Version = *spec.Version
	}
	if spec.VersionSuffix != nil {
		out.VersionSuffix = *spec.VersionSuffix
	}
	if spec.Toolchain != nil {
		out.Toolchain = *spec.Toolchain
	}
	if spec.SourceURLs != nil {
		out.SourceURLs = applyAmendment(out.SourceURLs, *spec.SourceURLs)
	}
	if spec.Sources != nil {
		out.Sources = applyAmendment(out.Sources, *spec.Sources)
	}
	if spec.Patches != nil {
		names := make([]string, len(out.Patches))
		for i, p := range out.Patches {
			names[i] = p.Name
		}
		names = applyAmendment(names, *spec.Patches)
		patches := make([]Patch, len(names))
		for i, n := range names {
			patches[i] = Patch{Name: n, Level: 1}
		}
		out.Patches = patches
	}

	if !spec.IsEmpty() {
		out.resolved = false
	}
	return out
}
