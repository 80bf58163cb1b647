package internal

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/packages"
)

func printErrors(pkgs []*packages.Package) int {
	n := 0
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, err := range p.Errors {
			n++
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
	})
	return n
}

// LoadPackages type-checks the packages matching pattern, from dir.
func LoadPackages(dir, pattern string) ([]*packages.Package, error) {
	pkgs, err := packages.Load(&packages.Config{
		Dir:  dir,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedTypes | packages.NeedSyntax | packages.NeedTypesInfo,
	}, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "load packages")
	}
	if n := printErrors(pkgs); n > 0 {
		return nil, errors.Errorf("%d errors in %s", n, pattern)
	}
	return pkgs, nil
}
