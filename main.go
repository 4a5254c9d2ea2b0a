package main

import (
	"embed"
	"os"

	"ptz-console/internal/cli"
)

//go:embed web/*
var staticFiles embed.FS

func main() {
	os.Exit(cli.Execute(staticFiles))
}
