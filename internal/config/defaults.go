package config

import "github.com/spachava753/sitebuild/internal/models"

const (
	DefaultDestRoot = "build"
	DefaultBowerDir = "bower_components"
	DefaultAddr     = "127.0.0.1:3000"
	DefaultDebounce = "100ms"
)

// DefaultConfig returns the canonical pipeline for an app/ + bower project.
func DefaultConfig() models.Config {
	htmlSource := []string{"app/**/*.html"}

	return models.Config{
		DestRoot: DefaultDestRoot,
		Bower: models.BowerConfig{
			Dir:        DefaultBowerDir,
			Manifest:   "bower.json",
			IncludeDev: true,
		},
		Server: models.ServerConfig{
			Addr:     DefaultAddr,
			Debounce: DefaultDebounce,
		},
		Categories: map[string]models.Category{
			"vendor": {
				Source: []string{DefaultBowerDir + "/**"},
				Dest:   "build/lib",
				Vendor: true,
				Also:   []string{"html"},
			},
			"html": {
				Source: htmlSource,
				Dest:   "build",
				Steps: []models.Step{
					{Kind: models.StepInject, Anchor: "bower", Prefix: "lib"},
					{Kind: models.StepMinify},
				},
				DependsOn: []string{"vendor", "javascript", "css", "sass", "less", "images", "fonts", "verbatim", "documentation"},
			},
			"javascript": {
				Source: []string{"app/js/**/*.js"},
				Dest:   "build/js",
				Steps: []models.Step{
					{Kind: models.StepConcat, Output: "app.min.js"},
					{Kind: models.StepMinify},
					{Kind: models.StepSourcemap, Inline: true},
				},
			},
			"css": {
				Source: []string{"app/css/**/*.css"},
				Dest:   "build/css",
				Steps: []models.Step{
					{Kind: models.StepMinify},
					{Kind: models.StepSourcemap},
				},
			},
			"sass": {
				Source: []string{"app/sass/**/*.scss", "!app/sass/includes/**"},
				Dest:   "build/css",
				Steps: []models.Step{
					{
						Kind:     models.StepCompile,
						Compiler: "sass",
						Style:    "compressed",
						IncludePaths: []string{
							DefaultBowerDir + "/bootstrap-sass/assets/stylesheets",
							DefaultBowerDir + "/font-awesome/scss",
						},
					},
					{Kind: models.StepPurge, HTML: htmlSource},
					{Kind: models.StepConcat, Output: "style.min.css"},
					{Kind: models.StepSourcemap},
				},
			},
			"less": {
				Source: []string{"app/less/**/*.less", "!app/less/includes/**"},
				Dest:   "build/css",
				Steps: []models.Step{
					{
						Kind:         models.StepCompile,
						Compiler:     "less",
						IncludePaths: []string{DefaultBowerDir + "/bootstrap/less"},
					},
					{Kind: models.StepPurge, HTML: htmlSource},
					{Kind: models.StepConcat, Output: "main.min.css"},
					{Kind: models.StepSourcemap},
				},
				Disabled: true,
			},
			"images": {
				Source: []string{"app/images/**/*.jpg", "app/images/**/*.jpeg", "app/images/**/*.png"},
				Dest:   "build/images",
				Steps:  []models.Step{{Kind: models.StepOptimize}},
			},
			"fonts": {
				Source: []string{"app/fonts/**", DefaultBowerDir + "/font-awesome/fonts/**"},
				Dest:   "build/fonts",
			},
			"verbatim": {
				Source: []string{"app/manifest.json", "app/favicon.png"},
				Dest:   "build",
			},
			"documentation": {
				Source: []string{"app/**/*.md"},
				Dest:   "build",
			},
		},
	}
}
