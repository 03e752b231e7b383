package buildinfo

// Version holds the application's version string.
// It's a `var` so it can be set at compile time using ldflags.
// Example: go build -ldflags="-X github.com/mythwright/nexus-config-backup/pkg/buildinfo.Version=0.0.1.0"
var Version = "0.0.1.0"

// Name is the canonical name of the application used for logging and lock ownership.
var Name = "nexus-config-backup"
