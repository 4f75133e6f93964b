package version

import (
	"runtime"
	"strings"
)

// Set with -ldflags "-X gainfair/internal/version.Version=...".
var (
	Version    = "dev"
	Commit     = "unknown"
	BuildTime  = ""
	SourceRepo = ""
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildTime  string `json:"build_time,omitempty"`
	SourceRepo string `json:"source_repo,omitempty"`
	GoVersion  string `json:"go_version"`
}

func Current() Info {
	out := Info{
		Version:    strings.TrimSpace(Version),
		Commit:     strings.TrimSpace(Commit),
		BuildTime:  strings.TrimSpace(BuildTime),
		SourceRepo: strings.TrimSpace(SourceRepo),
		GoVersion:  runtime.Version(),
	}
	if out.Version == "" {
		out.Version = "dev"
	}
	if out.Commit == "" {
		out.Commit = "unknown"
	}
	return out
}

func (i Info) String() string {
	return "gainfair " + i.Version + " (" + i.Commit + ")"
}
