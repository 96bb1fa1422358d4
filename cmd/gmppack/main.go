// Command gmppack builds a resource pack (§4.6) from a source tree of
// client/ and shared/ Lua scripts.
//
// Usage:
//
//	gmppack -source resources/myresource -out dist -name myresource -version 1.0.0
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/gmp-go/core/internal/resource/packer"
)

func main() {
	var opts packer.Options
	var compile bool

	flag.StringVar(&opts.SourceDir, "source", "", "source tree containing client/ and shared/ (required)")
	flag.StringVar(&opts.OutputDir, "out", "dist", "output directory for the .pak and manifest")
	flag.StringVar(&opts.Name, "name", "", "resource name (required)")
	flag.StringVar(&opts.Version, "version", "1.0.0", "resource version")
	flag.BoolVar(&compile, "compile", true, "syntax-check .lua sources and store them as .luac (signature plus source; no bytecode is produced)")
	flag.IntVar(&opts.CompressionLevel, "level", 6, "zip deflate level (0-9)")
	flag.Parse()

	opts.Compile = compile

	if opts.SourceDir == "" || opts.Name == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		slog.Error("creating output directory", "error", err)
		os.Exit(1)
	}

	result, err := packer.Build(opts)
	if err != nil {
		slog.Error("building pack", "error", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s (%d bytes, sha256=%s)\n", result.PakPath, result.Manifest.Archive.Size, result.Manifest.Archive.SHA256)
	fmt.Printf("wrote %s (%d files, entrypoints=%v)\n", result.ManifestPath, len(result.Manifest.Files), result.Manifest.Entrypoints)
}
