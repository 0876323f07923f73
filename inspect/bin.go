package main

import (
	"fmt"
	"log"
	"os"

	pl "github.com/facontidavide/PluginLoader"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "Inspect"
	app.Usage = "plugin library inspector"
	app.Description = "inspect plugin libraries: list the classes they register, compile plugin sources into loadable object files"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
		},
	}
	app.Args = true
	app.Commands = []*cli.Command{
		{
			Name:   "classes",
			Action: classes,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "shim", Aliases: []string{"s"}, Value: "plugin", Usage: "shim backend: plugin, dlopen or object"},
			},
			Args:  true,
			Usage: "load the given libraries and print the registered factories per base capability",
		},
		{
			Name:   "suffix",
			Action: suffix,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "shim", Aliases: []string{"s"}, Value: "plugin", Usage: "shim backend: plugin, dlopen or object"},
			},
			Usage: "print the platform library prefix and suffix",
		},
		{
			Name:   "compile",
			Action: compile,
			Args:   true,
			Usage:  "compile go sources to an object file loadable by the object shim. the arguments can be a list of go sources or '.' for the working directory.",
		},
		{
			Name:   "missing",
			Action: missing,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "pkg", Aliases: []string{"p"}, Usage: "package path or default main"},
			},
			Args:  true,
			Usage: "display symbols of an object file the host cannot resolve",
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("failure %s", err)
	}
}

func shimFor(ctx *cli.Context) (pl.SharedLibraryShim, error) {
	switch ctx.String("shim") {
	case "", "plugin":
		return pl.DefaultShim(), nil
	case "dlopen":
		return new(pl.DlopenShim), nil
	case "object":
		s, err := pl.NewObjectShim()
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown shim %q", ctx.String("shim"))
	}
}

func classes(ctx *cli.Context) (err error) {
	libs := ctx.Args().Slice()
	if len(libs) == 0 {
		return fmt.Errorf("missing library list")
	}
	var shim pl.SharedLibraryShim
	if shim, err = shimFor(ctx); err != nil {
		return
	}
	var loaders []*pl.Loader
	defer func() {
		for _, l := range loaders {
			l.Close()
		}
	}()
	for _, lib := range libs {
		var l *pl.Loader
		if l, err = pl.NewLoader(lib, false, pl.WithShim(shim)); err != nil {
			return
		}
		loaders = append(loaders, l)
	}
	fmt.Print(pl.DebugInfoString())
	return
}

func suffix(ctx *cli.Context) (err error) {
	var shim pl.SharedLibraryShim
	if shim, err = shimFor(ctx); err != nil {
		return
	}
	fmt.Printf("prefix: %q\nsuffix: %q\ndebug suffix: %q\n", shim.Prefix(), shim.Suffix(false), shim.Suffix(true))
	return
}

func missing(ctx *cli.Context) (err error) {
	shim, err := pl.NewObjectShim()
	if err != nil {
		return
	}
	shim.PkgPath = ctx.String("pkg")
	for _, s := range ctx.Args().Slice() {
		var syms []string
		if syms, err = shim.MissingSymbols(s); err != nil {
			return
		}
		log.Printf("%s:", s)
		for _, sym := range syms {
			log.Printf("\t%s", sym)
		}
	}
	return
}

func compile(ctx *cli.Context) (err error) {
	d := ctx.Bool("debug")
	o := ctx.Args().Slice()
	if len(o) == 0 {
		return fmt.Errorf("missing target sources list")
	}
	if len(o) == 1 && o[0] == "." {
		o, err = lookupSources()
		if err != nil {
			return
		}
		log.Printf("found go sources at working directory: %v", o)
	}
	if err = writeImportCfg(d, o); err != nil {
		return fmt.Errorf("generate importcfg : %w ", err)
	}
	return compileObjects(d, o)
}
