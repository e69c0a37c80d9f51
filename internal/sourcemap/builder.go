package sourcemap

import (
	"bytes"
	"fmt"
)

// Builder concatenates files and their maps. Parts are joined with a newline.
type Builder struct {
	buf     bytes.Buffer
	lines   [][]Segment
	sources []string
	content []string
	names   []string
	index   map[string]int
	nameIdx map[string]int
	parts   int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int), nameIdx: make(map[string]int)}
}

// Add appends content. m describes content's own origins; a nil m maps each
// line of content to source.
func (b *Builder) Add(source string, content []byte, m *Map) error {
	if b.parts > 0 {
		b.buf.WriteByte('\n')
	}
	b.parts++
	b.buf.Write(content)

	if m == nil {
		m = Identity(source, string(content))
	}
	decoded, err := Decode(m.Mappings)
	if err != nil {
		return fmt.Errorf("decoding map for %s: %w", source, err)
	}

	n := bytes.Count(content, []byte("\n")) + 1
	for i := range n {
		var line []Segment
		if i < len(decoded) {
			for _, seg := range decoded[i] {
				if seg.Source >= 0 && seg.Source < len(m.Sources) {
					var sc string
					if seg.Source < len(m.SourcesContent) {
						sc = m.SourcesContent[seg.Source]
					}
					seg.Source = b.source(m.Sources[seg.Source], sc)
					if seg.Name >= 0 && seg.Name < len(m.Names) {
						seg.Name = b.name(m.Names[seg.Name])
					} else {
						seg.Name = -1
					}
				} else {
					seg.Source, seg.Name = -1, -1
				}
				line = append(line, seg)
			}
		}
		b.lines = append(b.lines, line)
	}
	return nil
}

func (b *Builder) source(name, content string) int {
	if i, ok := b.index[name]; ok {
		return i
	}
	b.index[name] = len(b.sources)
	b.sources = append(b.sources, name)
	b.content = append(b.content, content)
	return b.index[name]
}

func (b *Builder) name(n string) int {
	if i, ok := b.nameIdx[n]; ok {
		return i
	}
	b.nameIdx[n] = len(b.names)
	b.names = append(b.names, n)
	return b.nameIdx[n]
}

// Bytes returns the concatenated content.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Map returns the map of the concatenated content.
func (b *Builder) Map() *Map {
	names := b.names
	if names == nil {
		names = []string{}
	}
	return &Map{
		Version:        3,
		Sources:        b.sources,
		SourcesContent: b.content,
		Names:          names,
		Mappings:       Encode(b.lines),
	}
}
