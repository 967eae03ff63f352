// Package meta holds build metadata shared by CLI subcommands.
package meta

// Version is the release version printed by serve and doctor.
const Version = "v1.0.0"
