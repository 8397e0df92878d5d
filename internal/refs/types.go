package refs

// Kind is the structured classification of a ref.
type Kind int

const (
	KindUnknown Kind = iota
	KindBranch
	KindTag
	KindPull
)

func (k Kind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindTag:
		return "tag"
	case KindPull:
		return "pull"
	default:
		return "unknown"
	}
}

// Ref is a parsed git ref. Raw is kept verbatim; Name is the short name
// (branch or tag name, or the pull request number for pull refs).
type Ref struct {
	Raw  string
	Kind Kind
	Name string
}

// String returns the ref exactly as it was parsed.
func (r Ref) String() string {
	return r.Raw
}

// IsTag reports whether the ref points at a tag.
func (r Ref) IsTag() bool {
	return r.Kind == KindTag
}
