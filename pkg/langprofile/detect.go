package langprofile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Project shapes.
const (
	ShapeMonorepo = "monorepo"
	ShapeSingle   = "single-package"
	ShapeUnknown  = "unknown"
)

// Adapt rewrites profile to use the tools the project has already
// configured. Priority: project scripts and tool configs > profile defaults.
func Adapt(projectRoot string, profile Profile) Profile {
	switch profile.Language {
	case "go":
		return adaptGo(projectRoot, profile)
	case "typescript", "javascript":
		return adaptJS(projectRoot, profile)
	case "python":
		return adaptPython(projectRoot, profile)
	case "java":
		return adaptJava(projectRoot, profile)
	default:
		return profile
	}
}

func adaptGo(projectRoot string, profile Profile) Profile {
	if hasAny(".golangci.yml", ".golangci.yaml", ".golangci.toml", ".golangci.json")(projectRoot) {
		profile.Linters = []Tool{{Name: "golangci-lint", Cmd: "golangci-lint run"}}
	}
	return profile
}

type packageJSON struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Workspaces      json.RawMessage   `json:"workspaces"`
}

func readPackageJSON(projectRoot string) (packageJSON, bool) {
	var pkg packageJSON
	//nolint:gosec // path is constructed from projectRoot parameter
	data, err := os.ReadFile(filepath.Join(projectRoot, "package.json"))
	if err != nil {
		return pkg, false
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return pkg, false
	}
	return pkg, true
}

// packageManager picks the runner matching the lockfile in projectRoot.
func packageManager(projectRoot string) string {
	switch {
	case hasAny("pnpm-lock.yaml")(projectRoot):
		return "pnpm"
	case hasAny("yarn.lock")(projectRoot):
		return "yarn"
	case hasAny("bun.lockb", "bun.lock")(projectRoot):
		return "bun"
	default:
		return "npm"
	}
}

// adaptJS prefers the package's own scripts over generic tool invocations.
func adaptJS(projectRoot string, profile Profile) Profile {
	pkg, ok := readPackageJSON(projectRoot)
	if !ok {
		return profile
	}
	pm := packageManager(projectRoot)

	switch {
	case pkg.Scripts["lint"] != "":
		profile.Linters = []Tool{{Name: "lint", Cmd: pm + " run lint"}}
	case hasPackage(pkg.Dependencies, "eslint") || hasPackage(pkg.DevDependencies, "eslint"):
		profile.Linters = []Tool{{Name: "eslint", Cmd: "npx eslint ."}}
	}
	for _, name := range []string{"typecheck", "type-check", "tsc"} {
		if pkg.Scripts[name] != "" {
			profile.TypeCheck = &Tool{Name: name, Cmd: pm + " run " + name}
			break
		}
	}
	if pkg.Scripts["test"] != "" {
		profile.TestCmd = pm + " test"
	} else {
		profile.TestCmd = ""
	}
	return profile
}

// adaptPython reads tool tables from pyproject.toml.
func adaptPython(projectRoot string, profile Profile) Profile {
	tools := pyprojectTools(projectRoot)
	if tools["ruff"] || hasAny("ruff.toml", ".ruff.toml")(projectRoot) {
		profile.Linters = []Tool{{Name: "ruff", Cmd: "ruff check ."}}
	}
	switch {
	case tools["mypy"] || hasAny("mypy.ini")(projectRoot):
		profile.TypeCheck = &Tool{Name: "mypy", Cmd: "mypy ."}
	case tools["pyright"] || hasAny("pyrightconfig.json")(projectRoot):
		profile.TypeCheck = &Tool{Name: "pyright", Cmd: "pyright"}
	}
	return profile
}

// pyprojectTools returns the [tool.*] tables configured in pyproject.toml.
func pyprojectTools(projectRoot string) map[string]bool {
	//nolint:gosec // path is constructed from projectRoot parameter
	data, err := os.ReadFile(filepath.Join(projectRoot, "pyproject.toml"))
	if err != nil {
		return nil
	}
	var pyproject struct {
		Tool map[string]any `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &pyproject); err != nil {
		return nil
	}
	out := make(map[string]bool, len(pyproject.Tool))
	for name := range pyproject.Tool {
		out[name] = true
	}
	return out
}

func adaptJava(projectRoot string, profile Profile) Profile {
	switch {
	case hasAny("gradlew")(projectRoot):
		profile.TestCmd = "./gradlew test"
	case hasAny("build.gradle", "build.gradle.kts")(projectRoot):
		profile.TestCmd = "gradle test"
	case hasAny("mvnw")(projectRoot):
		profile.TestCmd = "./mvnw -q test"
	}
	return profile
}

// hasPackage checks if a package name exists in the dependencies map.
func hasPackage(deps map[string]string, name string) bool {
	for key := range deps {
		if key == name || strings.HasPrefix(key, "@") && strings.Contains(key, name) {
			return true
		}
	}
	return false
}

// DetectStack returns the languages whose profile matches projectRoot, in
// profile order.
func DetectStack(projectRoot string) []string {
	var out []string
	for _, p := range Profiles() {
		if p.Detect(projectRoot) {
			out = append(out, p.Language)
		}
	}
	return out
}

// DetectShape classifies the repository layout.
func DetectShape(projectRoot string) string {
	if isMonorepo(projectRoot) {
		return ShapeMonorepo
	}
	if len(DetectStack(projectRoot)) > 0 {
		return ShapeSingle
	}
	return ShapeUnknown
}

func isMonorepo(projectRoot string) bool {
	if hasAny("go.work", "lerna.json", "nx.json", "turbo.json")(projectRoot) {
		return true
	}
	if len(pnpmWorkspaces(projectRoot)) > 0 {
		return true
	}
	if pkg, ok := readPackageJSON(projectRoot); ok && hasWorkspaces(pkg.Workspaces) {
		return true
	}
	return cargoWorkspace(projectRoot)
}

// pnpmWorkspaces returns the package globs of pnpm-workspace.yaml.
func pnpmWorkspaces(projectRoot string) []string {
	//nolint:gosec // path is constructed from projectRoot parameter
	data, err := os.ReadFile(filepath.Join(projectRoot, "pnpm-workspace.yaml"))
	if err != nil {
		return nil
	}
	var ws struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return nil
	}
	return slices.DeleteFunc(ws.Packages, func(s string) bool { return strings.TrimSpace(s) == "" })
}

// hasWorkspaces accepts both the array and the {"packages": [...]} forms.
func hasWorkspaces(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return len(list) > 0
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return len(obj.Packages) > 0
	}
	return false
}

func cargoWorkspace(projectRoot string) bool {
	//nolint:gosec // path is constructed from projectRoot parameter
	data, err := os.ReadFile(filepath.Join(projectRoot, "Cargo.toml"))
	if err != nil {
		return false
	}
	var cargo struct {
		Workspace *struct {
			Members []string `toml:"members"`
		} `toml:"workspace"`
	}
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return false
	}
	return cargo.Workspace != nil && len(cargo.Workspace.Members) > 0
}
