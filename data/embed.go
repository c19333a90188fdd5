package data

import "embed"

var (
	//go:embed ironshield.yaml
	Config embed.FS
)
