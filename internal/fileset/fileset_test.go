package fileset

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	tests := map[string]string{
		"app/js/**/*.js":         "app/js",
		"app/**/*.html":          "app",
		"app/manifest.json":      "app",
		"app/fonts/**":           "app/fonts",
		"*.md":                   ".",
		"app/images/*.{png,jpg}": "app/images",
	}
	for pattern, want := range tests {
		assert.Equal(t, want, Base(pattern), pattern)
	}
}

func TestExpand(t *testing.T) {
	fsys := fstest.MapFS{
		"app/sass/main.scss":           {Data: []byte("a")},
		"app/sass/theme/dark.scss":     {Data: []byte("b")},
		"app/sass/includes/_vars.scss": {Data: []byte("c")},
		"app/js/b.js":                  {Data: []byte("b")},
		"app/js/a.js":                  {Data: []byte("a")},
		"app/js/vendor/z.js":           {Data: []byte("z")},
		"app/index.html":               {Data: []byte("<html>")},
	}

	t.Run("negation", func(t *testing.T) {
		files, err := Expand(fsys, []string{"app/sass/**/*.scss", "!app/sass/includes/**"})
		require.NoError(t, err)
		var paths []string
		for _, f := range files {
			paths = append(paths, f.Path)
			assert.Equal(t, "app/sass", f.Base)
		}
		assert.Equal(t, []string{"app/sass/main.scss", "app/sass/theme/dark.scss"}, paths)
	})

	t.Run("lexical order is stable", func(t *testing.T) {
		for range 3 {
			files, err := Expand(fsys, []string{"app/js/**/*.js"})
			require.NoError(t, err)
			require.Len(t, files, 3)
			assert.Equal(t, "a.js", files[0].Rel())
			assert.Equal(t, "b.js", files[1].Rel())
			assert.Equal(t, "vendor/z.js", files[2].Rel())
		}
	})

	t.Run("duplicates listed once", func(t *testing.T) {
		files, err := Expand(fsys, []string{"app/js/a.js", "app/js/*.js"})
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "app/js/a.js", files[0].Path)
		assert.Equal(t, "app/js/b.js", files[1].Path)
	})

	t.Run("no matches", func(t *testing.T) {
		files, err := Expand(fsys, []string{"app/less/**/*.less"})
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}

func TestMatch(t *testing.T) {
	patterns := []string{"app/sass/**/*.scss", "!app/sass/includes/**"}
	assert.True(t, Match(patterns, "app/sass/main.scss"))
	assert.False(t, Match(patterns, "app/sass/includes/_vars.scss"))
	assert.False(t, Match(patterns, "app/js/a.js"))

	assert.True(t, Under(patterns, "app/sass/new"))
	assert.True(t, Under(patterns, "app"))
	assert.False(t, Under(patterns, "app/js"))

	assert.False(t, Under([]string{"bower.json"}, "node_modules"))
	assert.False(t, Under([]string{"*.md", "bower.json"}, "docs/sub"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]string{"app/**/*.html", "!app/x/**"}))
	assert.Error(t, Validate([]string{"app/[.html"}))
}
