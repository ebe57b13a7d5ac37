package techniques

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Techniques []Technique `yaml:"techniques"`
}

// Load reads a YAML catalog (JSON is accepted as YAML) and builds a graph.
// Any problem with the file is a GraphConfigurationError.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &GraphConfigurationError{Reason: fmt.Sprintf("open %s: %v", path, err)}
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a catalog document from r.
func Decode(r io.Reader) (*Graph, error) {
	var doc catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &GraphConfigurationError{Reason: fmt.Sprintf("decode: %v", err)}
	}
	if len(doc.Techniques) == 0 {
		return nil, &GraphConfigurationError{Reason: "catalog has no techniques"}
	}
	return New(doc.Techniques)
}

// Encode writes the graph as a YAML catalog.
func (g *Graph) Encode(w io.Writer) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(catalogFile{Techniques: g.All()}); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
