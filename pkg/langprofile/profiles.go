package langprofile

import (
	"os"
	"path/filepath"
)

// Profiles returns every built-in profile in detection order.
func Profiles() []Profile {
	return []Profile{GoProfile(), RustProfile(), TypeScriptProfile(), JavaScriptProfile(), PythonProfile(), JavaProfile()}
}

// GoProfile returns the profile for Go modules.
func GoProfile() Profile {
	return Profile{
		Language: "go",
		Detect:   hasAny("go.mod", "go.work"),
		Linters:  []Tool{{Name: "go vet", Cmd: "go vet ./..."}},
		TestCmd:  "go test ./...",
	}
}

// RustProfile returns the profile for cargo projects.
func RustProfile() Profile {
	return Profile{
		Language: "rust",
		Detect:   hasAny("Cargo.toml"),
		Linters:  []Tool{{Name: "clippy", Cmd: "cargo clippy --all-targets -- -D warnings"}},
		TestCmd:  "cargo test",
	}
}

// TypeScriptProfile returns the profile for TypeScript packages.
func TypeScriptProfile() Profile {
	return Profile{
		Language:  "typescript",
		Detect:    hasAny("tsconfig.json"),
		TypeCheck: &Tool{Name: "tsc", Cmd: "npx tsc --noEmit"},
		TestCmd:   "npm test",
	}
}

// JavaScriptProfile returns the profile for JavaScript packages without a
// tsconfig.json.
func JavaScriptProfile() Profile {
	return Profile{
		Language: "javascript",
		Detect: func(root string) bool {
			return hasAny("package.json")(root) && !hasAny("tsconfig.json")(root)
		},
		TestCmd: "npm test",
	}
}

// PythonProfile returns the profile for Python projects.
func PythonProfile() Profile {
	return Profile{
		Language: "python",
		Detect:   hasAny("pyproject.toml", "setup.py", "requirements.txt"),
		TestCmd:  "pytest -q",
	}
}

// JavaProfile returns the profile for Maven and Gradle builds.
func JavaProfile() Profile {
	return Profile{
		Language: "java",
		Detect:   hasAny("pom.xml", "build.gradle", "build.gradle.kts"),
		TestCmd:  "mvn -q test",
	}
}

// hasAny returns a detector matching a root that contains any of markers.
func hasAny(markers ...string) func(string) bool {
	return func(root string) bool {
		for _, m := range markers {
			if _, err := os.Stat(filepath.Join(root, m)); err == nil {
				return true
			}
		}
		return false
	}
}
