// Package project detects what kind of project a directory holds and which
// commands build, lint and test it.
package project

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// Kind identifies a project toolchain.
type Kind string

const (
	KindNode    Kind = "node"
	KindGo      Kind = "go"
	KindPython  Kind = "python"
	KindUnknown Kind = "unknown"
)

// Command is a named check command.
type Command struct {
	Name string // build, lint or test
	Run  string
}

// Project describes a detected project.
type Project struct {
	Kind     Kind
	Dir      string
	Name     string
	Manager  string // npm, yarn, pnpm; empty for non-node projects
	Commands []Command
}

// Detect inspects dir and returns the first project kind it recognizes, in
// the order node, go, python. An unrecognized directory yields KindUnknown
// with no commands.
func Detect(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	detectors := []func(string) (*Project, error){detectNode, detectGo, detectPython}
	for _, detect := range detectors {
		p, err := detect(abs)
		if err != nil {
			return nil, err
		}
		if p != nil {
			p.Dir = abs
			return p, nil
		}
	}
	return &Project{Kind: KindUnknown, Dir: abs, Name: filepath.Base(abs)}, nil
}

// Command returns the named command, if detected.
func (p *Project) Command(name string) (Command, bool) {
	for _, c := range p.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

type packageJSON struct {
	Name    string            `json:"name"`
	Scripts map[string]string `json:"scripts"`
}

// npmDefaultTest is what `npm init` writes as the test script.
const npmDefaultTest = `echo "Error: no test specified" && exit 1`

func detectNode(dir string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}

	manager := "npm"
	switch {
	case exists(filepath.Join(dir, "pnpm-lock.yaml")):
		manager = "pnpm"
	case exists(filepath.Join(dir, "yarn.lock")):
		manager = "yarn"
	}

	p := &Project{Kind: KindNode, Name: pkg.Name, Manager: manager}
	if p.Name == "" {
		p.Name = filepath.Base(dir)
	}
	for _, script := range []string{"build", "lint", "test"} {
		body, ok := pkg.Scripts[script]
		if !ok || strings.TrimSpace(body) == "" || body == npmDefaultTest {
			continue
		}
		run := manager + " run " + script
		if script == "test" && manager == "npm" {
			run = "npm test"
		}
		p.Commands = append(p.Commands, Command{Name: script, Run: run})
	}
	return p, nil
}

func detectGo(dir string) (*Project, error) {
	path := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read go.mod: %w", err)
	}
	mf, err := modfile.ParseLax(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse go.mod: %w", err)
	}

	p := &Project{Kind: KindGo, Name: filepath.Base(dir)}
	if mf.Module != nil {
		p.Name = mf.Module.Mod.Path
	}
	p.Commands = []Command{
		{Name: "build", Run: "go build ./..."},
		{Name: "lint", Run: "go vet ./..."},
		{Name: "test", Run: "go test ./..."},
	}
	return p, nil
}

func detectPython(dir string) (*Project, error) {
	var deps []string
	found := false
	for _, name := range []string{"requirements.txt", "requirements-dev.txt", "pyproject.toml"} {
		lines, err := readLines(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found = true
		deps = append(deps, lines...)
	}
	if !found {
		return nil, nil
	}

	mentions := func(tool string) bool {
		for _, l := range deps {
			if strings.Contains(strings.ToLower(l), tool) {
				return true
			}
		}
		return false
	}

	p := &Project{Kind: KindPython, Name: filepath.Base(dir)}
	p.Commands = append(p.Commands, Command{Name: "build", Run: "python3 -m compileall -q ."})
	switch {
	case mentions("ruff"):
		p.Commands = append(p.Commands, Command{Name: "lint", Run: "python3 -m ruff check ."})
	case mentions("flake8"):
		p.Commands = append(p.Commands, Command{Name: "lint", Run: "python3 -m flake8 ."})
	}
	if mentions("pytest") || exists(filepath.Join(dir, "tests")) {
		p.Commands = append(p.Commands, Command{Name: "test", Run: "python3 -m pytest -q"})
	}
	return p, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return lines, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
