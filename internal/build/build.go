package build

import (
	"runtime/debug"
	"time"
)

var (
	commit  = ""
	date    = ""
	version = "dev"
	repoURL = "https://github.com/ItsNotGoodName/wl-handmade"
)

func init() {
	Current = newBuild(commit, date, version, repoURL)
	if Current.Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			Current.fromSettings(info.Settings)
		}
	}
}

var Current Build

type Build struct {
	Commit     string    `json:"commit,omitempty"`
	Version    string    `json:"version,omitempty"`
	Date       time.Time `json:"date,omitempty"`
	Modified   bool      `json:"modified,omitempty"`
	RepoURL    string    `json:"repo_url,omitempty"`
	CommitURL  string    `json:"commit_url,omitempty"`
	ReleaseURL string    `json:"release_url,omitempty"`
}

func newBuild(commit, date, version, repoURL string) Build {
	d, _ := time.Parse(time.RFC3339, date)
	b := Build{
		Commit:  commit,
		Version: version,
		Date:    d,
		RepoURL: repoURL,
	}
	b.setURLs()
	return b
}

func (b *Build) setURLs() {
	b.CommitURL, b.ReleaseURL = "", ""
	if b.RepoURL == "" {
		return
	}
	if b.Commit != "" {
		b.CommitURL = b.RepoURL + "/tree/" + b.Commit
	}
	if b.Version != "dev" {
		b.ReleaseURL = b.RepoURL + "/releases/tag/" + b.Version
	}
}

// fromSettings fills the commit from the Go toolchain's VCS stamp.
func (b *Build) fromSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			b.Commit = s.Value
		case "vcs.time":
			if d, err := time.Parse(time.RFC3339, s.Value); err == nil {
				b.Date = d
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	b.setURLs()
}
