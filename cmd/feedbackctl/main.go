// Package main is the entry point for the feedbackctl CLI.
package main

import "github.com/zombar/feedbackanalyzer/internal/cli"

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0"
var version = "dev"

func main() {
	cli.Execute(version)
}
