// Package main provides the overlay-mcp binary, an MCP server that lets
// AI agents validate, resolve and test tutorials.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	omcp "github.com/ormasoftchile/overlay/pkg/ecosystem/mcp"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
)

var version = "dev"

func main() {
	regPath := flag.String("registry", "", "component registry YAML")
	flag.Parse()

	var reg *registry.Registry
	if *regPath != "" {
		var err error
		if reg, err = registry.LoadFile(*regPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	s := omcp.NewServer(version, reg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
