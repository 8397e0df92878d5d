package template

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/vk/cigraph/internal/evalerr"
	"github.com/vk/cigraph/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only document version this package understands.
const SupportedVersion = 1

// Extensions lists the file suffixes LoadPath picks up.
var Extensions = []string{".yml", ".yaml", ".json"}

// Document is one pipeline template.
type Document struct {
	Version  int                 `yaml:"version"`
	Let      map[string]any      `yaml:"let"`
	Defaults map[string]any      `yaml:"defaults"`
	Gates    map[string]GateSpec `yaml:"gates"`
	Tasks    []Entry             `yaml:"tasks"`

	// Source names where the document was read from.
	Source string `yaml:"-"`
}

// GateSpec declares a template-defined gate policy.
type GateSpec struct {
	When        string   `yaml:"when"`
	Requires    []string `yaml:"requires"`
	Description string   `yaml:"description"`
}

// Entry is one task declaration.
type Entry struct {
	Label        string `yaml:"label"`
	If           string `yaml:"if"`
	Gate         string `yaml:"gate"`
	Dependencies any    `yaml:"dependencies"`
	Task         any    `yaml:"task"`
}

// Load parses a YAML or JSON document.
func Load(r io.Reader, source string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", source, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, source, "document is empty")
		}
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, source, "%v", err)
	}
	doc.Source = source

	if doc.Version == 0 {
		doc.Version = SupportedVersion
	}
	if doc.Version != SupportedVersion {
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, source, "unsupported version %d", doc.Version)
	}

	if doc.Let, err = normalizeMap(doc.Let); err != nil {
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, source+".let", "%v", err)
	}
	if doc.Defaults, err = normalizeMap(doc.Defaults); err != nil {
		return nil, evalerr.New(evalerr.ErrInvalidTemplate, source+".defaults", "%v", err)
	}
	for i := range doc.Tasks {
		path := fmt.Sprintf("%s.tasks[%d]", source, i)
		if doc.Tasks[i].Dependencies, err = normalize(doc.Tasks[i].Dependencies); err != nil {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, path+".dependencies", "%v", err)
		}
		if doc.Tasks[i].Task, err = normalize(doc.Tasks[i].Task); err != nil {
			return nil, evalerr.New(evalerr.ErrInvalidTemplate, path+".task", "%v", err)
		}
	}

	return &doc, nil
}

// LoadBytes parses a document held in memory.
func LoadBytes(data []byte, source string) (*Document, error) {
	return Load(bytes.NewReader(data), source)
}

// LoadFile parses the document at path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer f.Close()
	return Load(f, path)
}

// LoadPath loads a single file, or every template file under a directory
// merged into one document in lexical file order.
func LoadPath(path string) (*Document, error) {
	files, err := fsutil.FindFilesByExtension(path, Extensions...)
	if err != nil {
		return nil, fmt.Errorf("failed to find templates in %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no template files found in %s", path)
	}

	docs := make([]*Document, 0, len(files))
	for _, file := range files {
		doc, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if len(docs) == 1 {
		return docs[0], nil
	}
	return Merge(path, docs...)
}

// Merge combines documents: tasks are concatenated in order, while let
// bindings, defaults and gates are unioned. A let binding or gate declared
// twice is an error; for defaults the first document wins.
func Merge(source string, docs ...*Document) (*Document, error) {
	out := &Document{
		Version:  SupportedVersion,
		Let:      map[string]any{},
		Defaults: map[string]any{},
		Gates:    map[string]GateSpec{},
		Source:   source,
	}
	for _, doc := range docs {
		for name, node := range doc.Let {
			if _, dup := out.Let[name]; dup {
				return nil, evalerr.New(evalerr.ErrInvalidTemplate, doc.Source+".let", "binding %q already declared", name)
			}
			out.Let[name] = node
		}
		for name, g := range doc.Gates {
			if _, dup := out.Gates[name]; dup {
				return nil, evalerr.New(evalerr.ErrInvalidTemplate, doc.Source+".gates", "gate %q already declared", name)
			}
			out.Gates[name] = g
		}
		if err := mergo.Merge(&out.Defaults, doc.Defaults); err != nil {
			return nil, fmt.Errorf("failed to merge defaults of %s: %w", doc.Source, err)
		}
		out.Tasks = append(out.Tasks, doc.Tasks...)
	}
	return out, nil
}

// normalize converts decoded YAML into the plain shapes the evaluator
// walks: map[string]any, []any and scalars.
func normalize(node any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		return normalizeMap(v)
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("mapping key %v must be a string", k)
			}
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	default:
		return v, nil
	}
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		n, err := normalize(v)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}
