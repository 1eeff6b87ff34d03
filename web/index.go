// Package web holds the embedded demo page and the browser-side client that
// collects interaction telemetry and brute-forces the proof of work. None of
// this is trusted by the server; it only exists so a human has something to
// interact with.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:static index.html
var content embed.FS

// Static is the embedded asset tree, rooted so that index.html and static/
// are addressable directly.
var Static fs.FS = content
