package refs

import (
	"regexp"
	"strings"
)

const (
	headsPrefix = "refs/heads/"
	tagsPrefix  = "refs/tags/"
)

// pullRegex matches GitHub pull refs, e.g. `refs/pull/42/head` or `refs/pull/42/merge`.
var pullRegex = regexp.MustCompile(`^refs/pull/(\d+)/(head|merge)$`)

// Parse classifies a raw ref. It never fails: anything it does not recognise,
// including bare branch names and commit SHAs, is KindUnknown with Name set
// to the raw value.
func Parse(raw string) Ref {
	ref := Ref{Raw: raw, Kind: KindUnknown, Name: raw}

	switch {
	case strings.HasPrefix(raw, headsPrefix) && len(raw) > len(headsPrefix):
		ref.Kind = KindBranch
		ref.Name = strings.TrimPrefix(raw, headsPrefix)
	case strings.HasPrefix(raw, tagsPrefix) && len(raw) > len(tagsPrefix):
		ref.Kind = KindTag
		ref.Name = strings.TrimPrefix(raw, tagsPrefix)
	default:
		if matches := pullRegex.FindStringSubmatch(raw); matches != nil {
			ref.Kind = KindPull
			ref.Name = matches[1]
		}
	}

	return ref
}
