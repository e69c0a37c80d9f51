package bower

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/sitebuild/internal/models"
)

func file(s string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(s)}
}

func projectFS() fstest.MapFS {
	return fstest.MapFS{
		"bower.json": file(`{
  "name": "site",
  "dependencies": {"bootstrap": "~3.3", "jquery": "~2.1"},
  "devDependencies": {"font-awesome": "~4.3"},
  "overrides": {"font-awesome": {"main": ["css/font-awesome.css", "fonts/*"]}}
}`),
		"bower_components/jquery/bower.json":                 file(`{"name": "jquery", "main": "dist/jquery.js"}`),
		"bower_components/jquery/dist/jquery.js":             file("jq"),
		"bower_components/bootstrap/.bower.json":             file(`{"name": "bootstrap", "main": ["./dist/css/bootstrap.css", "./dist/js/bootstrap.js"], "dependencies": {"jquery": ">= 1.9"}}`),
		"bower_components/bootstrap/dist/css/bootstrap.css":  file("bs"),
		"bower_components/bootstrap/dist/js/bootstrap.js":    file("bs"),
		"bower_components/font-awesome/bower.json":           file(`{"name": "font-awesome", "main": ["less/font-awesome.less"]}`),
		"bower_components/font-awesome/css/font-awesome.css": file("fa"),
		"bower_components/font-awesome/fonts/fa.woff":        file("w"),
		"bower_components/font-awesome/fonts/fa.ttf":         file("t"),
	}
}

func defaultConfig() models.BowerConfig {
	return models.BowerConfig{Dir: "bower_components", Manifest: "bower.json", IncludeDev: true}
}

func TestResolve(t *testing.T) {
	r := NewResolver(projectFS(), defaultConfig())
	files, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.VendorFileList{
		"jquery/dist/jquery.js",
		"bootstrap/dist/css/bootstrap.css",
		"bootstrap/dist/js/bootstrap.js",
		"font-awesome/css/font-awesome.css",
		"font-awesome/fonts/fa.ttf",
		"font-awesome/fonts/fa.woff",
	}, files)
}

func TestResolveWithoutDev(t *testing.T) {
	cfg := defaultConfig()
	cfg.IncludeDev = false
	files, err := NewResolver(projectFS(), cfg).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.VendorFileList{
		"jquery/dist/jquery.js",
		"bootstrap/dist/css/bootstrap.css",
		"bootstrap/dist/js/bootstrap.js",
	}, files)
}

func TestResolveIgnoreOverride(t *testing.T) {
	fsys := projectFS()
	fsys["bower.json"] = file(`{"dependencies": {"jquery": "*", "font-awesome": "*"}, "overrides": {"font-awesome": {"ignore": true}}}`)
	files, err := NewResolver(fsys, defaultConfig()).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.VendorFileList{"jquery/dist/jquery.js"}, files)
}

func TestResolveNoManifest(t *testing.T) {
	files, err := NewResolver(fstest.MapFS{}, defaultConfig()).Resolve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestResolveMissingPackage(t *testing.T) {
	fsys := fstest.MapFS{"bower.json": file(`{"dependencies": {"angular": "1.x"}}`)}
	_, err := NewResolver(fsys, defaultConfig()).Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.ErrConfig, models.TypeOf(err))
	assert.Contains(t, err.Error(), `"angular" is not installed`)
}

func TestResolveDependencyCycle(t *testing.T) {
	fsys := fstest.MapFS{
		"bower.json":                    file(`{"dependencies": {"a": "*"}}`),
		"bower_components/a/bower.json": file(`{"main": "a.js", "dependencies": {"b": "*"}}`),
		"bower_components/a/a.js":       file("a"),
		"bower_components/b/bower.json": file(`{"main": "b.js", "dependencies": {"a": "*"}}`),
		"bower_components/b/b.js":       file("b"),
	}
	files, err := NewResolver(fsys, defaultConfig()).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.VendorFileList{"b/b.js", "a/a.js"}, files)
}

func TestManifestFields(t *testing.T) {
	fsys := fstest.MapFS{
		"bower.json": file(`{"name": "x", "main": null, "dependencies": {"z": "1", "a": "2", "m": "3"}}`),
	}
	m, err := LoadManifest(fsys, "bower.json")
	require.NoError(t, err)
	assert.Equal(t, Deps{"z", "a", "m"}, m.Dependencies)
	assert.Empty(t, m.Main)

	fsys["bad.json"] = file(`{"main": 3}`)
	_, err = LoadManifest(fsys, "bad.json")
	require.Error(t, err)
	assert.Equal(t, models.ErrConfig, models.TypeOf(err))
}
