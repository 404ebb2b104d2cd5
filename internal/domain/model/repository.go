// Package model contains the domain entities tracked by releasedigest.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Repository represents a GitHub repository on the watch list.
type Repository struct {
	ID       int64
	FullName string
	Owner    string
	Name     string
	AddedAt  time.Time
}

var githubURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/?#]+)`)

// namePartPattern matches a single owner or repo segment.
var namePartPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ParseRepoInput parses user input identifying a repository, accepting either
// "owner/name" or a full GitHub URL ("https://github.com/owner/name[/...]").
// A trailing ".git" suffix on the repo name is stripped.
func ParseRepoInput(input string) (Repository, error) {
	input = strings.TrimSpace(input)

	var owner, name string
	if m := githubURLPattern.FindStringSubmatch(input); m != nil {
		owner, name = m[1], m[2]
	} else {
		parts := strings.SplitN(input, "/", 3)
		if len(parts) != 2 {
			return Repository{}, fmt.Errorf("invalid repository %q: expected owner/name or GitHub URL", input)
		}
		owner, name = parts[0], parts[1]
	}

	name = strings.TrimSuffix(name, ".git")

	if !namePartPattern.MatchString(owner) || !namePartPattern.MatchString(name) {
		return Repository{}, fmt.Errorf("invalid repository %q: expected owner/name or GitHub URL", input)
	}

	return Repository{
		Owner:    owner,
		Name:     name,
		FullName: owner + "/" + name,
	}, nil
}
