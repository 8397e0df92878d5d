// Package identity allocates the opaque task identities of one evaluation
// run. Every label maps to exactly one id, and ids never repeat within a
// run.
package identity

import (
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// maxRedraws bounds collision retries before the generator is declared broken.
const maxRedraws = 16

// Generator produces candidate task identities.
type Generator interface {
	Generate() (string, error)
}

// GeneratorFunc adapts a function to a Generator.
type GeneratorFunc func() (string, error)

func (f GeneratorFunc) Generate() (string, error) { return f() }

// Slug is the production generator: a random UUID encoded as 22 URL-safe
// base64 characters. The first bit is cleared so ids never start with '-'.
type Slug struct{}

func (Slug) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate slug id: %w", err)
	}
	id[0] &= 0x7f
	return base64.RawURLEncoding.EncodeToString(id[:]), nil
}

// Sequence returns a deterministic generator yielding prefix0, prefix1, ...
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return GeneratorFunc(func() (string, error) {
		return fmt.Sprintf("%s%d", prefix, n.Add(1)-1), nil
	})
}

// Allocator maps labels to identities for one run.
type Allocator struct {
	mu     sync.Mutex
	gen    Generator
	ids    map[string]string
	issued map[string]struct{}
}

// NewAllocator creates an empty allocator drawing ids from gen.
func NewAllocator(gen Generator) *Allocator {
	if gen == nil {
		gen = Slug{}
	}
	return &Allocator{
		gen:    gen,
		ids:    make(map[string]string),
		issued: make(map[string]struct{}),
	}
}

// Allocate returns the identity of label, creating it on first request.
func (a *Allocator) Allocate(label string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.ids[label]; ok {
		return id, nil
	}

	for attempt := 0; attempt < maxRedraws; attempt++ {
		id, err := a.gen.Generate()
		if err != nil {
			return "", err
		}
		if _, taken := a.issued[id]; taken {
			continue
		}
		a.ids[label] = id
		a.issued[id] = struct{}{}
		return id, nil
	}
	return "", fmt.Errorf("failed to allocate a unique id for %q after %d attempts", label, maxRedraws)
}

// Lookup returns the identity of label without allocating.
func (a *Allocator) Lookup(label string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.ids[label]
	return id, ok
}

// Labels returns every allocated label in sorted order.
func (a *Allocator) Labels() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	labels := make([]string, 0, len(a.ids))
	for label := range a.ids {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
