package app

import (
	"fmt"
	"io"
	"os"

	"github.com/vk/cigraph/internal/event"
	"github.com/vk/cigraph/internal/template"
	"github.com/vk/cigraph/templates"
)

// maxEventSize bounds webhook bodies read from disk, stdin or HTTP.
const maxEventSize = 5 << 20

func loadTemplate(path string) (*template.Document, error) {
	if path == "" {
		doc, err := templates.Reference()
		if err != nil {
			return nil, fmt.Errorf("failed to load reference template: %w", err)
		}
		return doc, nil
	}
	doc, err := template.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	return doc, nil
}

// readEvent decodes the webhook body at path, or from the App's input when
// path is "-".
func (a *App) readEvent(path string, tasksFor event.Classification) (*event.Event, error) {
	var r io.Reader
	if path == "-" {
		r = a.inR
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open event: %w", err)
		}
		defer f.Close()
		r = f
	}

	body, err := io.ReadAll(io.LimitReader(r, maxEventSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	if len(body) > maxEventSize {
		return nil, fmt.Errorf("event is larger than %d bytes", maxEventSize)
	}
	return event.Decode(event.KindFor(tasksFor), body)
}
