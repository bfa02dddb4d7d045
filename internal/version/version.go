// Package version reports build provenance for the lockbox binary.
package version

import "runtime/debug"

var (
	// Set via -ldflags at build time.
	GitRepo   string
	GitBranch string
	GitCommit string
	BuildTime string
)

// Info is everything known about how this binary was built.
type Info struct {
	GitRepo   string           `json:"gitRepo,omitempty"`
	GitBranch string           `json:"gitBranch,omitempty"`
	GitCommit string           `json:"gitCommit,omitempty"`
	BuildTime string           `json:"buildTime,omitempty"`
	BuildInfo *debug.BuildInfo `json:"buildInfo,omitempty"`
}

// Get assembles Info from the ldflags vars and the runtime's embedded
// module/VCS metadata.
func Get() Info {
	info := Info{
		GitRepo:   GitRepo,
		GitBranch: GitBranch,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.BuildInfo = bi
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	return info
}
