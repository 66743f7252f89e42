package langprofile

import "slices"

// Detection is what refloop knows about a repository before scanning it.
type Detection struct {
	Stack    []string `json:"stack"`
	Shape    string   `json:"shape"`
	Commands []string `json:"commands"`
}

// Detect inspects projectRoot and resolves its verification commands from
// the matching profiles, adapted to the tools the project configures.
// Commands shared by several profiles appear once.
func Detect(projectRoot string) Detection {
	d := Detection{Shape: DetectShape(projectRoot)}
	for _, p := range Profiles() {
		if !p.Detect(projectRoot) {
			continue
		}
		d.Stack = append(d.Stack, p.Language)
		for _, c := range Adapt(projectRoot, p).Commands() {
			if !slices.Contains(d.Commands, c) {
				d.Commands = append(d.Commands, c)
			}
		}
	}
	return d
}
