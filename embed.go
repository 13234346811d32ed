package spacetraveling

import "embed"

//go:generate curl -sSfL -o embedded/htmx.min.js https://unpkg.com/htmx.org@2.0.4/dist/htmx.min.js

// EmbeddedAssets contains the assets shipped with the binary and served
// under /public/: htmx.min.js, which drives the load-more trigger and the
// loading placeholder, and the default logo.svg.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
