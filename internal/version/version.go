// Package version reports which pinkeep build is running.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const modulePath = "pkt.systems/pinkeep"

// stamped is set at link time:
//
//	-ldflags "-X pkt.systems/pinkeep/internal/version.stamped=v1.0.0"
var stamped = ""

// Info describes the running binary.
type Info struct {
	Module   string
	Version  string
	Revision string
	Modified bool
}

// Read collects Info from the link-time stamp and the embedded build info.
func Read() Info {
	info, _ := debug.ReadBuildInfo()
	return describe(stamped, info)
}

// Current returns the version string, such as v1.2.0 or a pseudo-version
// derived from the VCS stamp.
func Current() string {
	return Read().Version
}

// UserAgent is the User-Agent pinkeep sends on its own HTTP requests.
func UserAgent() string {
	return "pinkeep/" + Current()
}

// String renders Info the way the version command prints it.
func (i Info) String() string {
	out := i.Module + " " + i.Version
	if i.Modified {
		out += " (modified)"
	}
	return out
}

func describe(stamp string, info *debug.BuildInfo) Info {
	out := Info{Module: modulePath, Version: "v0.0.0-unknown"}
	if info != nil {
		if p := strings.TrimSpace(info.Main.Path); p != "" {
			out.Module = p
		}
		vcsTime := ""
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				out.Revision = s.Value
			case "vcs.time":
				vcsTime = s.Value
			case "vcs.modified":
				out.Modified = s.Value == "true"
			}
		}
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			out.Version = v
		} else if pv := pseudoVersion(out.Revision, vcsTime); pv != "" {
			out.Version = pv
		}
	}
	if v := strings.TrimSpace(stamp); v != "" {
		out.Version = v
	}
	out.Version = strings.TrimSuffix(out.Version, "+dirty")
	return out
}

func pseudoVersion(revision, vcsTime string) string {
	if revision == "" || vcsTime == "" {
		return ""
	}
	at, err := time.Parse(time.RFC3339, vcsTime)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + revision
}
