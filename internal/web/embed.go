package web

import (
	"embed"
	"io/fs"
)

//go:embed *.html static
var files embed.FS

// FS provides access to embedded web files
var FS fs.FS = files

// Static serves the files under static/ at their own names.
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
