// Package schemas ships the JSON schemas for the edit socket, the observer
// stream and layout files.
package schemas

import "embed"

//go:embed *.schema.json
var FS embed.FS
