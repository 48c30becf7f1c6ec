// Package migrations embeds the schema and seed files into binaries.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sql/*.sql
var schema embed.FS

//go:embed seeds/*.sql
var seeds embed.FS

// Schema returns the up/down migration files at the root of the FS.
func Schema() fs.FS { return sub(schema, "sql") }

// Seeds returns the seed files at the root of the FS.
func Seeds() fs.FS { return sub(seeds, "seeds") }

func sub(f embed.FS, dir string) fs.FS {
	s, err := fs.Sub(f, dir)
	if err != nil {
		panic(err)
	}
	return s
}
