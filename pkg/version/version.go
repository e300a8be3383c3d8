// Package version identifies the running build for logs, release tags
// and user-agent strings.
package version

import "runtime/debug"

// App names the service in release identifiers.
const App = "anotherai"

// revision is stamped via -ldflags in container builds, where the .git
// directory is not available to the toolchain.
var revision string

// Commit returns the short revision this binary was built from: the
// ldflags stamp when present, otherwise the VCS revision recorded in the
// build info, otherwise "dev". Builds from a modified working tree get a
// "-dirty" suffix.
func Commit() string {
	if revision != "" {
		return short(revision)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "dev"
	}
	if dirty {
		return short(rev) + "-dirty"
	}
	return short(rev)
}

// Full returns "<app>/<commit>".
func Full() string {
	return App + "/" + Commit()
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}
