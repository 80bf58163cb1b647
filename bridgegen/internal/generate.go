package internal

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/packages"

	"github.com/flutterbridge/hostbridge/bridgegen/internal/collect"
	"github.com/flutterbridge/hostbridge/bridgegen/internal/gogen"
)

// Generate writes the glue file named output into the directory of every
// package that declares annotated APIs, and returns the written paths.
func Generate(pkgs []*packages.Package, output, bridge string) ([]string, error) {
	var written []string
	for _, pkg := range pkgs {
		apis, err := collect.Collect(pkg.Fset, pkg.Types, pkg.Syntax)
		if err != nil {
			return written, err
		}
		if len(apis) == 0 || len(pkg.GoFiles) == 0 {
			continue
		}

		var buf bytes.Buffer
		g := gogen.Generator{PkgPath: pkg.PkgPath, PkgName: pkg.Name, Bridge: bridge}
		if err := g.Render(&buf, apis); err != nil {
			return written, errors.Wrapf(err, "render %s", pkg.PkgPath)
		}
		path := filepath.Join(filepath.Dir(pkg.GoFiles[0]), output)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return written, errors.Wrapf(err, "write %s", path)
		}
		written = append(written, path)
	}
	return written, nil
}
