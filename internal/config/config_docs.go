package config

import "tools.zach/dev/dynapatch/internal/paths"

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config
// field. The genconfig tool uses it to annotate config.default.toml.
type FieldDoc struct {
	// Comment is shown above the field. Multiple lines are split on "\n".
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps dotted TOML paths (e.g. "log.level") to their [FieldDoc].
// Section entries ("font") document the table itself.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version, do not edit.",
	},

	"font": {
		Comment: "Font injected into dynalist.asar.",
	},
	"font.family": {
		Comment: "Font family for the preferred-font CSS rule.\nUsed when no font name is given on the command line.",
		Alternatives: []string{
			`family = "Fira Code"`,
		},
	},

	"archive": {
		Comment: "Repacking of app.asar and dynalist.asar.",
	},
	"archive.unpack": {
		Comment: "Doublestar globs, relative to the archive root, for files kept outside\nthe repacked archive in <archive>.unpacked/.",
		Alternatives: []string{
			`unpack = ["**/*.node"]`,
		},
	},

	"log.level": {
		Comment: "Minimum log level: trace, debug, info, warn, error, fail.",
		Alternatives: []string{
			`level = "trace"`,
		},
	},
	"log.file": {
		Comment: "Optional log file. Relative paths resolve against the resources\ndirectory. Empty logs to the console only.",
		Alternatives: []string{
			`file = "` + paths.LogFile + `"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Rotate the log file after this many megabytes.",
	},
}

// ExampleConfig returns the config rendered into config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}
