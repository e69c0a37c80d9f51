package pipeline

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"
	minhtml "github.com/tdewolff/minify/v2/html"
	minjs "github.com/tdewolff/minify/v2/js"

	"github.com/spachava753/sitebuild/internal/sourcemap"
)

var htmlMinifier = func() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", mincss.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), minjs.Minify)
	m.Add("text/html", &minhtml.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepDefaultAttrVals: true,
	})
	return m
}()

// MinifyHTML minifies a document, including inline styles and scripts.
func MinifyHTML(doc []byte) ([]byte, error) {
	return htmlMinifier.Bytes("text/html", doc)
}

// Minified is the result of minifying a script or stylesheet.
type Minified struct {
	Code []byte
	// Map is set when a map was requested, and maps Code onto the input.
	Map *sourcemap.Map
}

// MinifyAsset minifies JavaScript or CSS, selected by the file extension of
// name. withMap requests a source map of the output onto the input.
func MinifyAsset(name string, code []byte, withMap bool) (*Minified, error) {
	loader := api.LoaderJS
	if strings.HasSuffix(name, ".css") {
		loader = api.LoaderCSS
	}

	opts := api.TransformOptions{
		Loader:            loader,
		Sourcefile:        name,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LogLevel:          api.LogLevelSilent,
	}
	if withMap {
		opts.Sourcemap = api.SourceMapExternal
	}

	result := api.Transform(string(code), opts)
	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		ce := &CompileError{Path: name, Message: msg.Text}
		if msg.Location != nil {
			ce.Line = msg.Location.Line
		}
		return nil, ce
	}

	out := &Minified{Code: result.Code}
	if withMap && len(result.Map) > 0 {
		m, err := sourcemap.Parse(result.Map)
		if err != nil {
			return nil, fmt.Errorf("reading minifier map: %w", err)
		}
		out.Map = m
	}
	return out, nil
}

// minify shrinks scripts, stylesheets and documents; other files pass
// through.
func (st *state) minify() error {
	for _, f := range st.files {
		switch ext := strings.ToLower(path.Ext(f.Path)); ext {
		case ".html", ".htm":
			out, err := MinifyHTML(f.Contents)
			if err != nil {
				st.contain(f, 0, err)
				continue
			}
			f.Contents = out
		case ".js", ".css":
			res, err := MinifyAsset(f.Path, f.Contents, st.track && f.Map != nil)
			if err != nil {
				st.contain(f, 0, err)
				continue
			}
			f.Contents = res.Code
			if res.Map != nil {
				composed, err := sourcemap.Compose(res.Map, f.Map)
				if err != nil {
					st.contain(f, 0, err)
					continue
				}
				f.Map = composed
			}
		}
	}
	return nil
}
