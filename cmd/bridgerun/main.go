// Package main provides bridgerun, a headless host for script bundles.
//
// Usage:
//
//	bridgerun [flags] <command>
//
// Commands:
//
//	run      - create a context, wait for idle and print the view tree
//	monitor  - interactive lifecycle console
//
// Configuration is read from a YAML file (--config). Flags override the
// matching file fields.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
