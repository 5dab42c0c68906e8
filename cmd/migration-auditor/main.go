package main

import "github.com/kuhlman-labs/migration-auditor/internal/cli"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.Execute(version)
}
