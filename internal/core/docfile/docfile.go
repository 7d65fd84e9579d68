// Package docfile reads documents from JSON and YAML files.
package docfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/docgate/docgate/internal/core"
)

// Format identifies a document file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Entry is one document together with where it was read from.
type Entry struct {
	Source   string
	Document *core.Document
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return "", false
	}
}

// Load reads documents from a file or from every JSON/YAML file directly
// inside a directory, in lexical order.
func Load(path string) ([]Entry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("document path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	files := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		if _, ok := FormatForPath(entry.Name()); ok {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)

	var out []Entry
	for _, file := range files {
		entries, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func loadFile(path string) ([]Entry, error) {
	format, ok := FormatForPath(path)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported document file extension", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck // read-only

	docs, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	entries := make([]Entry, 0, len(docs))
	for i, doc := range docs {
		source := path
		if len(docs) > 1 {
			source = fmt.Sprintf("%s#%d", path, i)
		}
		entries = append(entries, Entry{Source: source, Document: doc})
	}
	return entries, nil
}

// Decode reads one document, a list of documents or, for YAML, a stream of
// documents separated by "---".
func Decode(r io.Reader, format Format) ([]*core.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return decodeJSON(data)
	case FormatYAML:
		return decodeYAML(data)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func decodeJSON(data []byte) ([]*core.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document file")
	}

	if trimmed[0] == '[' {
		var docs []*core.Document
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("decode json documents: %w", err)
		}
		return compact(docs), nil
	}

	var doc core.Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode json document: %w", err)
	}
	return []*core.Document{&doc}, nil
}

// decodeYAML goes through the JSON encoding so that both formats share one
// set of field names and date rules.
func decodeYAML(data []byte) ([]*core.Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var docs []*core.Document
	for {
		var raw any
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if raw == nil {
			continue
		}

		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		batch, err := decodeJSON(encoded)
		if err != nil {
			return nil, err
		}
		docs = append(docs, batch...)
	}

	if len(docs) == 0 {
		return nil, errors.New("empty document file")
	}
	return docs, nil
}

func compact(docs []*core.Document) []*core.Document {
	out := docs[:0]
	for _, doc := range docs {
		if doc != nil {
			out = append(out, doc)
		}
	}
	return out
}
