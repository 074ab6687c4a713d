// Package main is the supportkb CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/TylerDurden17/support-agent/internal/indexer"
	"github.com/TylerDurden17/support-agent/internal/vector"
)

// Version information, set at build time with -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if h := hint(err); h != "" {
			fmt.Fprintln(os.Stderr, h)
		}
		os.Exit(1)
	}
}

// hint suggests the command that resolves err, if there is one.
func hint(err error) string {
	switch {
	case errors.Is(err, vector.ErrEmptyStore):
		return "the knowledge base is empty; add documents and run `supportkb index --rebuild`"
	case errors.Is(err, vector.ErrDimensionMismatch), errors.Is(err, indexer.ErrProviderMismatch):
		return "the stored knowledge base was built with another embedding provider; rebuild with `supportkb index --rebuild`"
	case errors.Is(err, vector.ErrCorruptStore):
		return "the stored knowledge base is unreadable; rebuild with `supportkb index --rebuild`"
	}
	return ""
}
