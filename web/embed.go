package web

import "embed"

// Content holds the browser client served at / (index.html, app.js, styles.css).
//
//go:embed index.html app.js styles.css
var Content embed.FS
