//go:build ignore

// gen-schema writes the tutorial and registry JSON Schemas to schemas/.
// Run from the repository root: go run scripts/gen-schema.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

func main() {
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	for _, out := range []struct {
		file string
		gen  func() ([]byte, error)
	}{
		{"tutorial-v0.json", schema.GenerateTutorialJSONSchema},
		{"registry-v0.json", schema.GenerateRegistryJSONSchema},
	} {
		data, err := out.gen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate %s: %v\n", out.file, err)
			os.Exit(1)
		}
		path := filepath.Join("schemas", out.file)
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote", path)
	}
}
