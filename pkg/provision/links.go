package provision

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format selects how link directives are rendered.
type Format string

const (
	// FormatCargo prints cargo:rustc-link-* lines.
	FormatCargo Format = "cargo"

	// FormatCGO prints a #cgo LDFLAGS line.
	FormatCGO Format = "cgo"

	// FormatJSON prints the link spec as a JSON object.
	FormatJSON Format = "json"
)

// ParseFormat parses a directive format name. An empty name is cargo.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCargo:
		return FormatCargo, nil
	case FormatCGO:
		return FormatCGO, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown directive format %q (want cargo, cgo or json)", s)
	}
}

// LinkSpec is what a consumer needs to link against the provisioned libraries.
type LinkSpec struct {
	Platform   Platform `json:"platform"`
	SearchPath string   `json:"search_path"`
	Libraries  []string `json:"libraries"`
	Static     bool     `json:"static"`
}

// Links returns the link spec for a platform and output directory.
func Links(platform Platform, outDir string) LinkSpec {
	if platform == PlatformWindows {
		return LinkSpec{
			Platform:   PlatformWindows,
			SearchPath: outDir,
			Libraries:  append([]string(nil), WindowsLibraries...),
		}
	}
	return LinkSpec{
		Platform:   PlatformUnix,
		SearchPath: filepath.Join(outDir, "lib"),
		Libraries:  []string{"fftw3", "fftw3f"},
		Static:     true,
	}
}

// Directives renders the link spec as cargo directives.
func (l LinkSpec) Directives() []string {
	lines := []string{"cargo:rustc-link-search=" + l.SearchPath}
	for _, lib := range l.Libraries {
		if l.Static {
			lines = append(lines, "cargo:rustc-link-lib=static="+lib)
		} else {
			// Import libraries keep the lib prefix of the DLL they describe.
			lines = append(lines, "cargo:rustc-link-lib=lib"+lib)
		}
	}
	return lines
}

// LDFlags renders the link spec as linker flags.
func (l LinkSpec) LDFlags() string {
	flags := []string{"-L" + l.SearchPath}
	for _, lib := range l.Libraries {
		flags = append(flags, "-l"+lib)
	}
	return strings.Join(flags, " ")
}

// Emit writes the link spec to w in the given format.
func (l LinkSpec) Emit(w io.Writer, format Format) error {
	switch format {
	case FormatCargo, "":
		for _, line := range l.Directives() {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	case FormatCGO:
		_, err := fmt.Fprintf(w, "#cgo LDFLAGS: %s\n", l.LDFlags())
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	default:
		return fmt.Errorf("unknown directive format %q", format)
	}
}
