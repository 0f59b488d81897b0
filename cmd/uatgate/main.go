// Package main provides the uatgate binary entry point.
// Uatgate turns a product specification into executable user acceptance
// tests, runs them across browser, API, accessibility and visual adapters,
// and repairs the failures it can prove safe to fix.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/c360studio/uatgate/commands"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
