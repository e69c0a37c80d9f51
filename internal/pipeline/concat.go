package pipeline

import (
	"path"
	"strings"

	"github.com/spachava753/sitebuild/internal/models"
	"github.com/spachava753/sitebuild/internal/sourcemap"
)

// concat joins the file set, in order, into a single file.
func (st *state) concat(step models.Step) error {
	if len(st.files) == 0 {
		return nil
	}

	b := sourcemap.NewBuilder()
	for _, f := range st.files {
		var m *sourcemap.Map
		if st.track {
			m = f.Map
		}
		if err := b.Add(f.Path, f.Contents, m); err != nil {
			st.contain(f, 0, err)
			return nil
		}
	}

	out := &File{Path: step.Output, Contents: append([]byte(nil), b.Bytes()...)}
	if st.track {
		out.Map = b.Map()
	}
	st.logger.Debug("concatenated files", "count", len(st.files), "output", step.Output)
	st.files = []*File{out}
	return nil
}

// sourcemap attaches each file's tracked map, inline or as a sibling .map
// file.
func (st *state) sourcemap(step models.Step) {
	var out []*File
	for _, f := range st.files {
		out = append(out, f)
		if f.Map == nil {
			continue
		}
		css := strings.HasSuffix(f.Path, ".css")
		m := *f.Map
		m.File = path.Base(f.Path)
		m.SourceRoot = "/source/"

		code := strings.TrimRight(string(sourcemap.StripComment(f.Contents)), "\n")
		if step.Inline {
			f.Contents = []byte(code + "\n" + sourcemap.Comment(m.DataURL(), css) + "\n")
			continue
		}

		mapName := path.Base(f.Path) + ".map"
		f.Contents = []byte(code + "\n" + sourcemap.Comment(mapName, css) + "\n")
		out = append(out, &File{Path: f.Path + ".map", Contents: m.JSON()})
	}
	st.files = out
}
