package main

import "github.com/metcalfc/narr/cmd"

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.Execute(cmd.BuildInfo{Version: version, Commit: commit, Date: date})
}
