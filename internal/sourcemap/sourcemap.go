// Package sourcemap reads, writes, concatenates and chains version 3 source
// maps.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Map is a version 3 source map.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Segment is one decoded mapping. Source is -1 for segments that map to no
// original position.
type Segment struct {
	GenCol  int
	Source  int
	SrcLine int
	SrcCol  int
	Name    int
}

// Parse decodes a JSON source map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	return &m, nil
}

// JSON encodes the map.
func (m *Map) JSON() []byte {
	data, _ := json.Marshal(m)
	return data
}

// Identity maps every line of content onto the same line of source.
func Identity(source, content string) *Map {
	lines := make([][]Segment, strings.Count(content, "\n")+1)
	for i := range lines {
		lines[i] = []Segment{{GenCol: 0, Source: 0, SrcLine: i, SrcCol: 0, Name: -1}}
	}
	return &Map{
		Version:        3,
		Sources:        []string{source},
		SourcesContent: []string{content},
		Names:          []string{},
		Mappings:       Encode(lines),
	}
}

// Decode expands a mappings string into per-line segments.
func Decode(mappings string) ([][]Segment, error) {
	var lines [][]Segment
	var line []Segment
	src, srcLine, srcCol, name := 0, 0, 0, 0
	genCol := 0

	pos := 0
	for pos <= len(mappings) {
		if pos == len(mappings) || mappings[pos] == ';' {
			lines = append(lines, line)
			line = nil
			genCol = 0
			pos++
			continue
		}
		if mappings[pos] == ',' {
			pos++
			continue
		}

		var fields [5]int
		n := 0
		for pos < len(mappings) && mappings[pos] != ',' && mappings[pos] != ';' {
			if n == 5 {
				return nil, fmt.Errorf("segment with more than 5 fields at offset %d", pos)
			}
			v, next, err := readVLQ(mappings, pos)
			if err != nil {
				return nil, err
			}
			fields[n] = v
			n++
			pos = next
		}

		genCol += fields[0]
		seg := Segment{GenCol: genCol, Source: -1, Name: -1}
		switch n {
		case 1:
		case 4, 5:
			src += fields[1]
			srcLine += fields[2]
			srcCol += fields[3]
			seg.Source, seg.SrcLine, seg.SrcCol = src, srcLine, srcCol
			if n == 5 {
				name += fields[4]
				seg.Name = name
			}
		default:
			return nil, fmt.Errorf("segment with %d fields", n)
		}
		line = append(line, seg)
	}
	return lines, nil
}

// Encode is the inverse of Decode.
func Encode(lines [][]Segment) string {
	var sb strings.Builder
	src, srcLine, srcCol, name := 0, 0, 0, 0
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte(';')
		}
		genCol := 0
		for j, seg := range line {
			if j > 0 {
				sb.WriteByte(',')
			}
			writeVLQ(&sb, seg.GenCol-genCol)
			genCol = seg.GenCol
			if seg.Source < 0 {
				continue
			}
			writeVLQ(&sb, seg.Source-src)
			writeVLQ(&sb, seg.SrcLine-srcLine)
			writeVLQ(&sb, seg.SrcCol-srcCol)
			src, srcLine, srcCol = seg.Source, seg.SrcLine, seg.SrcCol
			if seg.Name >= 0 {
				writeVLQ(&sb, seg.Name-name)
				name = seg.Name
			}
		}
	}
	return sb.String()
}

// Compose chains outer, which maps generated code onto an intermediate file,
// with inner, which maps that intermediate file onto the original sources.
// The result maps generated code directly onto the original sources.
func Compose(outer, inner *Map) (*Map, error) {
	outerLines, err := Decode(outer.Mappings)
	if err != nil {
		return nil, fmt.Errorf("decoding outer map: %w", err)
	}
	innerLines, err := Decode(inner.Mappings)
	if err != nil {
		return nil, fmt.Errorf("decoding inner map: %w", err)
	}

	out := &Map{
		Version:        3,
		File:           outer.File,
		SourceRoot:     inner.SourceRoot,
		Sources:        inner.Sources,
		SourcesContent: inner.SourcesContent,
		Names:          []string{},
	}
	names := make(map[string]int)
	nameIndex := func(n string) int {
		if i, ok := names[n]; ok {
			return i
		}
		names[n] = len(out.Names)
		out.Names = append(out.Names, n)
		return names[n]
	}

	lines := make([][]Segment, len(outerLines))
	for i, line := range outerLines {
		for _, seg := range line {
			if seg.Source < 0 || seg.SrcLine >= len(innerLines) {
				continue
			}
			target, ok := lookup(innerLines[seg.SrcLine], seg.SrcCol)
			if !ok || target.Source < 0 {
				continue
			}
			composed := Segment{
				GenCol:  seg.GenCol,
				Source:  target.Source,
				SrcLine: target.SrcLine,
				SrcCol:  target.SrcCol + (seg.SrcCol - target.GenCol),
				Name:    -1,
			}
			switch {
			case seg.Name >= 0 && seg.Name < len(outer.Names):
				composed.Name = nameIndex(outer.Names[seg.Name])
			case target.Name >= 0 && target.Name < len(inner.Names):
				composed.Name = nameIndex(inner.Names[target.Name])
			}
			lines[i] = append(lines[i], composed)
		}
	}
	out.Mappings = Encode(lines)
	return out, nil
}

// lookup finds the segment covering col: the last one starting at or before
// it.
func lookup(line []Segment, col int) (Segment, bool) {
	i := sort.Search(len(line), func(i int) bool { return line[i].GenCol > col })
	if i == 0 {
		return Segment{}, false
	}
	return line[i-1], true
}

// Comment returns the sourceMappingURL comment for url in the syntax of the
// given file type.
func Comment(url string, css bool) string {
	if css {
		return "/*# sourceMappingURL=" + url + " */"
	}
	return "//# sourceMappingURL=" + url
}

// DataURL encodes the map as a base64 data URL for inline embedding.
func (m *Map) DataURL() string {
	return "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(m.JSON())
}

// StripComment removes a trailing sourceMappingURL comment from code.
func StripComment(code []byte) []byte {
	s := strings.TrimRight(string(code), "\n")
	idx := strings.LastIndex(s, "\n")
	last := s[idx+1:]
	if strings.HasPrefix(last, "//# sourceMappingURL=") || strings.HasPrefix(last, "/*# sourceMappingURL=") {
		return []byte(strings.TrimRight(s[:idx+1], "\n") + "\n")
	}
	return code
}
