package version

import "testing"

func TestGetFillsGitCommitFromVCSWhenLdflagsUnset(t *testing.T) {
	GitCommit = ""
	BuildTime = ""
	info := Get()
	if info.BuildInfo == nil {
		t.Skip("no embedded build info in this test binary")
	}
	for _, s := range info.BuildInfo.Settings {
		if s.Key == "vcs.revision" && info.GitCommit != s.Value {
			t.Errorf("GitCommit = %q, want %q from vcs.revision", info.GitCommit, s.Value)
		}
	}
}

func TestGetPrefersLdflagsOverVCS(t *testing.T) {
	GitCommit = "pinned-commit"
	defer func() { GitCommit = "" }()

	info := Get()
	if info.GitCommit != "pinned-commit" {
		t.Errorf("GitCommit = %q, want pinned-commit", info.GitCommit)
	}
}
