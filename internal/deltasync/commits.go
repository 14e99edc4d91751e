package deltasync

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/contextvault/cv/internal/logging"
	"github.com/contextvault/cv/internal/types"
)

// maxInitialCommitBackfill bounds how much history a repo with no
// commit cursor yet ingests in one tick — a full clone's log can run to
// hundreds of thousands of entries, and spec.md §5's 5-minute sync
// timeout budget doesn't afford walking all of it. Incremental ticks
// are unbounded: they only ever see the commit range since the cursor.
const maxInitialCommitBackfill = 500

// CommitTouch is one file a commit changed, carrying the MODIFIES edge
// properties spec.md §3 assigns that edge (change_type, insertions,
// deletions).
type CommitTouch struct {
	Path       string
	ChangeType string // "added" | "modified" | "deleted"
	Insertions int
	Deletions  int
}

// CommitRecord pairs a Commit node with the files it touched, the unit
// Sink.UpsertCommits ingests per commit.
type CommitRecord struct {
	Commit types.Commit
	Files  []CommitTouch
}

func runGitLog(ctx context.Context, root string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	out, err := cmd.Output()
	return string(out), err
}

func isGitRepo(ctx context.Context, root string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = root
	return cmd.Run() == nil
}

func headSHA(ctx context.Context, root string) string {
	out, err := runGitLog(ctx, root, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// loadCommitRecords returns every commit in (sinceSHA, HEAD] (or the most
// recent maxInitialCommitBackfill commits if sinceSHA is empty), each
// with its per-file insertions/deletions/change-type, newest first.
func loadCommitRecords(ctx context.Context, root, sinceSHA string) ([]CommitRecord, error) {
	rangeArg := "HEAD"
	limitArgs := []string{"-n", strconv.Itoa(maxInitialCommitBackfill)}
	if sinceSHA != "" {
		rangeArg = sinceSHA + "..HEAD"
		limitArgs = nil
	}

	numstatArgs := append([]string{"log", rangeArg, "--no-merges",
		"--pretty=format:COMMIT:%H|%an|%ct|%s", "--numstat"}, limitArgs...)
	numstatOut, err := runGitLog(ctx, root, numstatArgs...)
	if err != nil {
		return nil, err
	}

	statusArgs := append([]string{"log", rangeArg, "--no-merges",
		"--pretty=format:COMMIT:%H", "--name-status"}, limitArgs...)
	statusOut, err := runGitLog(ctx, root, statusArgs...)
	if err != nil {
		logging.Warnf(logging.CategorySync, "commit sync: name-status failed, change_type defaults to modified: %v", err)
		statusOut = ""
	}
	changeTypes := parseNameStatus(statusOut)

	records := parseNumstatLog(numstatOut)
	for i := range records {
		sha := records[i].Commit.SHA
		for j := range records[i].Files {
			if ct, ok := changeTypes[sha][records[i].Files[j].Path]; ok {
				records[i].Files[j].ChangeType = ct
			}
		}
	}
	return records, nil
}

func parseNumstatLog(out string) []CommitRecord {
	var records []CommitRecord
	var cur *CommitRecord
	scanner := bufio.NewScanner(bytes.NewReader([]byte(out)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "COMMIT:") {
			if cur != nil {
				records = append(records, *cur)
			}
			parts := strings.SplitN(strings.TrimPrefix(line, "COMMIT:"), "|", 4)
			if len(parts) < 4 {
				cur = nil
				continue
			}
			ts, _ := strconv.ParseInt(parts[2], 10, 64)
			cur = &CommitRecord{Commit: types.Commit{
				SHA: parts[0], Author: parts[1], Timestamp: time.Unix(ts, 0), Message: parts[3],
			}}
			continue
		}
		if line == "" || cur == nil {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		ins, _ := strconv.Atoi(fields[0])
		del, _ := strconv.Atoi(fields[1])
		cur.Files = append(cur.Files, CommitTouch{Path: fields[2], ChangeType: "modified", Insertions: ins, Deletions: del})
		cur.Commit.Insertions += ins
		cur.Commit.Deletions += del
	}
	if cur != nil {
		records = append(records, *cur)
	}
	for i := range records {
		records[i].Commit.FilesChanged = len(records[i].Files)
	}
	return records
}

// parseNameStatus maps sha -> path -> change_type from `git log --name-status`
// output, translating git's A/M/D/R/C/T status letters into the three
// change_type values spec.md §3's MODIFIES edge documents.
func parseNameStatus(out string) map[string]map[string]string {
	result := map[string]map[string]string{}
	var sha string
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "COMMIT:") {
			sha = strings.TrimPrefix(line, "COMMIT:")
			result[sha] = map[string]string{}
			continue
		}
		if line == "" || sha == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		status, path := fields[0], fields[len(fields)-1]
		result[sha][path] = changeTypeFromStatus(status)
	}
	return result
}

func changeTypeFromStatus(status string) string {
	switch status[0] {
	case 'A':
		return "added"
	case 'D':
		return "deleted"
	default: // M, R, C, T, ...
		return "modified"
	}
}
