// Package trimsilence removes silent stretches from recorded video.
package trimsilence

// Version is overridden at build time with -ldflags "-X github.com/gwlsn/trimsilence.Version=...".
var Version = "dev"
