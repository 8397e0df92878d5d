package template

import (
	"fmt"
	"sync"
	"time"

	"github.com/vk/cigraph/internal/clock"
	"github.com/vk/cigraph/internal/evalctx"
	"github.com/zclconf/go-cty/cty/function"
)

// Scope is everything a node evaluation can observe.
type Scope struct {
	Env   *evalctx.Environment
	Funcs map[string]function.Function
	// Now supplies the instant `$fromNow` is relative to.
	Now  func() time.Time
	Path string
}

// At returns a copy of s positioned at a child path.
func (s Scope) At(elem string) Scope {
	s.Path = join(s.Path, elem)
	return s
}

// Index returns a copy of s positioned at a sequence element.
func (s Scope) Index(i int) Scope {
	s.Path = fmt.Sprintf("%s[%d]", s.Path, i)
	return s
}

// LazyNow reads c at most once, on first call.
func LazyNow(c clock.Clock) func() time.Time {
	return sync.OnceValue(c.Now)
}
