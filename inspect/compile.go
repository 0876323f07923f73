package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/ZenLiuCN/fn"
)

// lookupSources lists the non-test go files in the working directory.
func lookupSources() (v []string, err error) {
	var wd string
	wd, err = os.Getwd()
	if err != nil {
		return
	}
	var e []os.DirEntry
	e, err = os.ReadDir(wd)
	if err != nil {
		return
	}
	for _, entry := range e {
		if entry.IsDir() {
			continue
		}
		n := entry.Name()
		if strings.HasSuffix(n, ".go") && !strings.HasSuffix(n, "_test.go") {
			v = append(v, n)
		}
	}
	return
}

// writeImportCfg generates an importcfg file in the working directory
// covering the dependencies of the given sources.
func writeImportCfg(debug bool, f []string) (err error) {
	if debug {
		log.Printf("sources: %v", f)
	}
	_, err = exec.LookPath("go")
	if err != nil {
		return fmt.Errorf("missing go sdk: %w ", err)
	}
	var cfg *os.File
	if cfg, err = os.OpenFile("importcfg", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.ModePerm); err != nil {
		return
	}
	defer fn.IgnoreClose(cfg)
	cmd := exec.Command("go", append([]string{"list", "-export", "-f", "{{.Imports}}"}, f...)...)
	if debug {
		log.Printf("execute: %v", cmd.Args)
	}
	var bout []byte
	if bout, err = cmd.Output(); err != nil {
		return fmt.Errorf("inspect imports: %w\nerr:%s\nout:%s", err, err.(*exec.ExitError).Stderr, string(bout))
	}
	out := strings.TrimSpace(string(bout))
	if out != "" && out[0] == '[' {
		out = out[1 : len(out)-1]
	}
	in := strings.Split(out, " ")
	if debug {
		log.Printf("deps: %v", in)
	}
	cmd = exec.Command("go", append([]string{"list", "-export", "-f", "{{if .Export}}packagefile {{.ImportPath}}={{.Export}}{{end}}", "std"}, in...)...)
	if debug {
		log.Printf("execute: %v", cmd.Args)
	}
	if bout, err = cmd.Output(); err != nil {
		return fmt.Errorf("inspect dependencies: %w\nerr:%s\nout:%s", err, err.(*exec.ExitError).Stderr, string(bout))
	}
	_, err = cfg.Write(bout)
	return
}

// compileObjects compiles the sources into an object file in the
// working directory.
func compileObjects(debug bool, o []string) (err error) {
	cmd := exec.Command("go", append([]string{"tool", "compile", "-importcfg", "importcfg"}, o...)...)
	if debug {
		log.Printf("execute: %v", cmd.Args)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err = cmd.Run()
	if err == nil && !debug {
		err = os.Remove("importcfg")
	}
	return
}
