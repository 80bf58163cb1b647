// Command bridgegen generates registrar glue for annotated API interfaces.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/flutterbridge/hostbridge/bridgegen/internal"
	"github.com/flutterbridge/hostbridge/bridgegen/internal/config"
	"github.com/flutterbridge/hostbridge/bridgegen/internal/gogen"
)

type Opts struct {
	Packages struct {
		Patterns []string `positional-arg-name:"package" required:"1"`
	} `positional-args:"yes"`
	ConfigFile string `short:"c" long:"config" default:"bridgegen.yaml" description:"Path to generator config file"`
	Output     string `short:"o" long:"output" description:"Name of the generated file in each package"`
	Dir        string `short:"C" long:"dir" default:"." description:"Directory to load packages from"`
}

var opts Opts

func die(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "oops: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	_, err := parser.Parse()
	die(err)

	var cfg config.ConfigStruct
	die(cfg.Parse(opts.ConfigFile, config.ConfigStruct{
		Output: "api_bridge.go",
		Bridge: gogen.DefaultBridgeImport,
	}))
	if opts.Output != "" {
		cfg.Output = opts.Output
	}

	for _, pattern := range opts.Packages.Patterns {
		pkgs, err := internal.LoadPackages(opts.Dir, pattern)
		die(err)
		written, err := internal.Generate(pkgs, cfg.Output, cfg.Bridge)
		die(err)
		for _, path := range written {
			fmt.Println(path)
		}
	}
}
