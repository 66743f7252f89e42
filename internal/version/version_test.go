package version_test

import (
	"runtime"
	"strings"
	"testing"

	"refloop/internal/version"
)

func TestVersionIsSet(t *testing.T) {
	t.Parallel()

	v := version.String()
	if v == "" {
		t.Fatal("version.String() must not be empty")
	}
}

func TestLong(t *testing.T) {
	t.Parallel()

	got := version.Long()
	if !strings.HasPrefix(got, "refloop "+version.String()) {
		t.Errorf("Long() = %q, want refloop prefix", got)
	}
	if !strings.Contains(got, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Long() = %q, missing platform", got)
	}
}
