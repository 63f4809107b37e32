// Package dynapatch provides embedded assets for the dynapatch command.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML], which `dynapatch -write-config` copies next to the
// archives.
package dynapatch

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
