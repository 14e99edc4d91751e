package manifold

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/contextvault/cv/internal/logging"
)

// commitInfo is one parsed `git log` entry, grounded on the teacher's
// internal/world/git_scanner.go numstat-parsing pattern.
type commitInfo struct {
	SHA       string
	Author    string
	Message   string
	Timestamp time.Time
	Files     []string
}

func runGit(ctx context.Context, root string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	out, err := cmd.Output()
	return string(out), err
}

func isGitRepo(ctx context.Context, root string) bool {
	_, err := runGit(ctx, root, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// recentCommits returns the last n commits with the files each touched.
func recentCommits(ctx context.Context, root string, n int) []commitInfo {
	if !isGitRepo(ctx, root) {
		return nil
	}
	out, err := runGit(ctx, root, "log", "-n"+strconv.Itoa(n),
		"--pretty=format:COMMIT:%H|%an|%ct|%s", "--name-only")
	if err != nil {
		logging.Warnf(logging.CategoryManifold, "manifold: git log failed: %v", err)
		return nil
	}

	var commits []commitInfo
	var cur *commitInfo
	scanner := bufio.NewScanner(bytes.NewReader([]byte(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "COMMIT:") {
			if cur != nil {
				commits = append(commits, *cur)
			}
			parts := strings.SplitN(strings.TrimPrefix(line, "COMMIT:"), "|", 4)
			if len(parts) < 4 {
				cur = nil
				continue
			}
			ts, _ := strconv.ParseInt(parts[2], 10, 64)
			cur = &commitInfo{SHA: parts[0], Author: parts[1], Timestamp: time.Unix(ts, 0), Message: parts[3]}
			continue
		}
		if line == "" || cur == nil {
			continue
		}
		cur.Files = append(cur.Files, line)
	}
	if cur != nil {
		commits = append(commits, *cur)
	}
	return commits
}

// hotFiles tallies change frequency across the recent commit window.
func hotFiles(commits []commitInfo, topN int) []string {
	counts := make(map[string]int)
	for _, c := range commits {
		for _, f := range c.Files {
			counts[f]++
		}
	}
	type pair struct {
		file  string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for f, c := range counts {
		pairs = append(pairs, pair{f, c})
	}
	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].count > pairs[i].count {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	if len(pairs) > topN {
		pairs = pairs[:topN]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.file
	}
	return out
}

// workingTreeStatus runs `git status --porcelain` and buckets paths.
func workingTreeStatus(ctx context.Context, root string) (modified, staged, untracked []string) {
	if !isGitRepo(ctx, root) {
		return nil, nil, nil
	}
	out, err := runGit(ctx, root, "status", "--porcelain")
	if err != nil {
		logging.Warnf(logging.CategoryManifold, "manifold: git status failed: %v", err)
		return nil, nil, nil
	}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		index, work, path := line[0], line[1], strings.TrimSpace(line[3:])
		switch {
		case index == '?' && work == '?':
			untracked = append(untracked, path)
		case index != ' ' && index != '?':
			staged = append(staged, path)
			if work != ' ' {
				modified = append(modified, path)
			}
		case work != ' ':
			modified = append(modified, path)
		}
	}
	return modified, staged, untracked
}

// currentBranch returns the checked-out branch name, or "" if detached
// or not a git repo.
func currentBranch(ctx context.Context, root string) string {
	if !isGitRepo(ctx, root) {
		return ""
	}
	out, err := runGit(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// conventionalType extracts the `type` prefix of a conventional-commit
// message ("feat:", "fix(scope):", ...), or "" if it doesn't match.
func conventionalType(message string) string {
	i := strings.IndexAny(message, ":(")
	if i <= 0 {
		return ""
	}
	t := message[:i]
	for _, r := range t {
		if !(r >= 'a' && r <= 'z') {
			return ""
		}
	}
	return t
}
