//go:build mage

// Package main contains Mage build targets for geolocate developer tooling.
package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the CLI expects.
var projectDirs = []string{
	".secrets",
	"cache",
	"models",
	"output",
}

// Init creates the working directories and an empty geolocate.yaml.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	if _, err := os.Stat("geolocate.yaml"); os.IsNotExist(err) {
		if err := os.WriteFile("geolocate.yaml", []byte(configTemplate), 0o644); err != nil {
			return fmt.Errorf("writing geolocate.yaml: %w", err)
		}
		fmt.Println("   geolocate.yaml")
	}
	fmt.Println("Project directories initialized. Put API keys in .secrets/ and the CLIP model in models/.")
	return nil
}

const configTemplate = `# Overrides for types.DefaultConfig. Environment variables use the
# GEOLOCATE_ prefix, e.g. GEOLOCATE_LOG_LEVEL=debug.
search:
  default_center: {lat: -23.5505, lon: -46.6333}
  radii: [2000, 3000, 5000]
decision:
  min_confidence: 0.85
store:
  driver: sqlite3
  dir: cache
log:
  level: info
`

const (
	binDir  = "bin"
	binName = "geolocate"
	cmdPkg  = "./cmd/geolocate"
)

// Build compiles the CLI binary into bin/, stamping the version from
// GEOLOCATE_VERSION when set.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version := os.Getenv("GEOLOCATE_VERSION")
	if version == "" {
		version = "dev"
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests. Set GEOLOCATE_TEST_REDIS to include the Redis
// round trip.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Check vets, tests and builds.
func Check() error {
	mg.SerialDeps(Vet, Test, Build)
	return nil
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Stats prints non-blank Go lines per top-level package directory, split
// into production and test code, and the word count of Markdown and YAML
// documents.
func Stats() error {
	counts := map[string]*lineCount{}
	docWords := 0

	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_")) {
				return filepath.SkipDir
			}
			return nil
		}

		switch filepath.Ext(path) {
		case ".go":
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			key := packageGroup(path)
			if counts[key] == nil {
				counts[key] = &lineCount{}
			}
			n := nonBlankLines(data)
			if strings.HasSuffix(path, "_test.go") {
				counts[key].test += n
			} else {
				counts[key].prod += n
			}
		case ".md", ".yaml", ".yml":
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			docWords += len(bytes.Fields(data))
		}
		return nil
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var prod, test int
	fmt.Printf("%-36s  %8s  %8s\n", "Package", "Prod", "Test")
	for _, k := range keys {
		c := counts[k]
		fmt.Printf("%-36s  %8d  %8d\n", k, c.prod, c.test)
		prod += c.prod
		test += c.test
	}
	fmt.Printf("%-36s  %8d  %8d\n", "total", prod, test)
	fmt.Printf("Words (documentation): %d\n", docWords)
	return nil
}

type lineCount struct {
	prod, test int
}

// packageGroup returns the directory holding path, e.g. internal/scoring.
func packageGroup(path string) string {
	dir := filepath.ToSlash(filepath.Dir(path))
	if dir == "." {
		return "(root)"
	}
	return dir
}

func nonBlankLines(data []byte) int {
	n := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n
}
