package version

// Version is the shopfinder release, overridden at build time via -ldflags.
var Version = "v0.4.2"
