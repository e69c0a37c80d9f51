package models

import "strings"

// ReloadKind tells connected browsers how to apply a change.
type ReloadKind string

const (
	ReloadPage ReloadKind = "reload"
	// ReloadInject swaps stylesheets in place without navigation.
	ReloadInject ReloadKind = "inject"
)

// ReloadEvent is emitted after a watch-triggered rebuild.
type ReloadEvent struct {
	Category string     `json:"category"`
	Paths    []string   `json:"paths"`
	Kind     ReloadKind `json:"kind"`
}

// NewReloadEvent classifies the written paths: if every non-map path is a
// stylesheet the event asks for style injection, otherwise a full reload.
func NewReloadEvent(category string, paths []string) ReloadEvent {
	css, other := 0, 0
	for _, p := range paths {
		switch {
		case strings.HasSuffix(p, ".map"):
		case strings.HasSuffix(p, ".css"):
			css++
		default:
			other++
		}
	}
	kind := ReloadPage
	if css > 0 && other == 0 {
		kind = ReloadInject
	}
	return ReloadEvent{Category: category, Paths: paths, Kind: kind}
}
