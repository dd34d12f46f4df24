// worldc validates world YAML files and prints a summary of each.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cacaoengine/cacao/internal/scene"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: worldc [-scripts <dir>] [-tree] <world.yaml>...")
		os.Exit(1)
	}

	var (
		scriptsDir string
		tree       bool
		paths      []string
	)
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-scripts":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "-scripts needs a directory")
				os.Exit(1)
			}
			i++
			scriptsDir = args[i]
		case "-tree":
			tree = true
		default:
			paths = append(paths, args[i])
		}
	}

	failed := 0
	for _, path := range paths {
		if err := check(path, scriptsDir, tree); err != nil {
			fmt.Fprintf(os.Stderr, "%s:\n%s\n", path, indent(err.Error()))
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d world files invalid\n", failed, len(paths))
		os.Exit(1)
	}
}

func check(path, scriptsDir string, tree bool) error {
	f, err := scene.ReadFile(path)
	if err != nil {
		return err
	}
	if scriptsDir != "" {
		if err := checkScripts(f.Entities, "", scriptsDir); err != nil {
			return err
		}
	}

	s := f.Stats()
	fmt.Printf("%s (%s)\n", f.Name, path)
	fmt.Printf("  entities:  %d (inactive %d, depth %d)\n", s.Entities, s.Inactive, s.MaxDepth)
	fmt.Printf("  scripts:   %d\n", s.Scripts)
	fmt.Printf("  meshes:    %d\n", s.Meshes)
	fmt.Printf("  resources: %d\n", s.Resources)
	if tree {
		printTree(f.Entities, 1)
	}
	return nil
}

// checkScripts reports every script reference with no file behind it.
func checkScripts(es []scene.EntityEntry, parent, dir string) error {
	var missing []string
	var walk func(es []scene.EntityEntry, parent string)
	walk = func(es []scene.EntityEntry, parent string) {
		for _, e := range es {
			p := e.Name
			if parent != "" {
				p = parent + "/" + e.Name
			}
			for _, c := range e.Components {
				if c.Script == "" {
					continue
				}
				if _, err := os.Stat(filepath.Join(dir, c.Script)); err != nil {
					missing = append(missing, fmt.Sprintf("%s: script %q not found in %s", p, c.Script, dir))
				}
			}
			walk(e.Children, p)
		}
	}
	walk(es, parent)
	if len(missing) > 0 {
		return errors.New(strings.Join(missing, "\n"))
	}
	return nil
}

func printTree(es []scene.EntityEntry, depth int) {
	for _, e := range es {
		var parts []string
		for _, c := range e.Components {
			if c.Script != "" {
				parts = append(parts, "script:"+c.Script)
			} else {
				parts = append(parts, "mesh:"+c.Mesh)
			}
		}
		state := ""
		if e.Active != nil && !*e.Active {
			state = " (inactive)"
		}
		fmt.Printf("%s%s%s [%s]\n", strings.Repeat("  ", depth+1), e.Name, state, strings.Join(parts, ", "))
		printTree(e.Children, depth+1)
	}
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
