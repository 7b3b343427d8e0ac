package version

// Version is overridden at build time with -ldflags "-X .../internal/version.Version=...".
var Version = "0.0.1"
