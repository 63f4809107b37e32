// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig() and config.ConfigDocs.
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/dynapatch/internal/config"
)

// header opens the generated file.
var header = []string{
	"# ///////////////////////////////////////////////",
	"# Dynapatch Configuration",
	"# ///////////////////////////////////////////////",
	"#",
	"# Place this file at <dynalist>/resources/dynapatch.toml or pass -config.",
	"# Command-line arguments take precedence over everything here.",
	"",
}

func main() {
	result, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}

	// go generate runs from internal/config/; ../../ is the repo root where
	// configdata.go embeds config.default.toml.
	outPath := "../../config.default.toml"
	if err := os.WriteFile(outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote config.default.toml\n")
}

// render encodes cfg as TOML and annotates every key and section found in
// docs with its comment and commented-out alternatives.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	out := append([]string(nil), header...)
	var sectionStack []string

	for _, line := range strings.Split(raw.String(), "\n") {
		trimmed := strings.TrimSpace(line)

		// The encoder's blank lines are dropped; spacing is managed here.
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[[") {
			section := strings.Trim(trimmed, "[] ")
			sectionStack = parseSectionPath(section)

			out = append(out, "", fmt.Sprintf("# ///// %s /////", sectionName(section)), "")
			out = appendComment(out, docs[section].Comment)
			out = append(out, trimmed)
			continue
		}

		if !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#") {
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		fullPath := key
		if len(sectionStack) > 0 {
			fullPath = strings.Join(sectionStack, ".") + "." + key
		}

		doc := docs[fullPath]
		out = appendComment(out, doc.Comment)
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}

	result := strings.Join(out, "\n")
	return strings.TrimRight(result, "\n") + "\n", nil
}

// appendComment appends comment as "# " lines, one per "\n"-separated line.
func appendComment(out []string, comment string) []string {
	if comment == "" {
		return out
	}
	for _, cl := range strings.Split(comment, "\n") {
		out = append(out, "# "+cl)
	}
	return out
}

// parseSectionPath splits a dotted TOML section header ("log.file") into its
// path segments.
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns the last dotted segment of section with its first
// letter capitalized: "archive" yields "Archive".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if len(last) == 0 {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
