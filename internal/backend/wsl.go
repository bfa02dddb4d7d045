package backend

// wslCommon holds the WSL backend code that's agnostic of whether we're
// actually compiled into a windows binary (so it can be unit tested from any
// host). The wsl.exe-invoking bits live in wsl_windows.go / wsl_other.go.
type wslCommon struct{}

func (wslCommon) Name() string { return "wsl" }

// instanceName derives the WSL distro name registered for a given container
// id; WSL distro names are more constrained than our 12-hex container ids,
// so every instance gets a stable, collision-free prefix.
func instanceName(id string) string {
	return "lockbox-" + id
}
