package tools

import (
	"context"
	"strconv"
	"strings"
)

// GitStatusTool reports the working tree status.
type GitStatusTool struct {
	runner *ShellRunner
}

func (t *GitStatusTool) Name() string               { return "git_status" }
func (t *GitStatusTool) Description() string        { return "Shows the current status of the Git repository." }
func (t *GitStatusTool) Parameters() map[string]any { return object(nil, nil) }
func (t *GitStatusTool) RequiresConfirmation() bool { return false }
func (t *GitStatusTool) FewShotExamples() string {
	return "What is the git status?\nAre there uncommitted changes?"
}

func (t *GitStatusTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	res, err := t.runner.Run(ctx, "git", []string{"status"}, "")
	if err != nil {
		return "", err
	}
	return outcome(res, "Git status retrieved successfully.", "Failed to retrieve Git status"), nil
}

// GitHistoryTool lists recent commits touching a path.
type GitHistoryTool struct {
	runner *ShellRunner
	ws     *Workspace
}

type commitEntry struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

func (t *GitHistoryTool) Name() string { return "git_history" }
func (t *GitHistoryTool) Description() string {
	return "Retrieves the Git commit history for a path, newest first, with an optional limit."
}
func (t *GitHistoryTool) Parameters() map[string]any {
	return object(nil, map[string]any{
		"path":  prop("string", `Path within the repository. Defaults to ".".`),
		"limit": prop("integer", "Maximum number of commits to return. Defaults to 10."),
	})
}
func (t *GitHistoryTool) RequiresConfirmation() bool { return false }
func (t *GitHistoryTool) FewShotExamples() string {
	return "Show the last 5 commits.\nWho changed 'go.mod' recently?"
}

func (t *GitHistoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	p, _ := stringArg(args, "path")
	rel, err := t.ws.Clean(p)
	if err != nil {
		return Failure("%v", err).String(), nil
	}
	limit := intArg(args, "limit", 10)
	if limit <= 0 {
		limit = 10
	}

	res, err := t.runner.Run(ctx, "git", []string{
		"log", "--no-merges", "--pretty=format:%H %s", "-n", strconv.Itoa(limit), "--", rel,
	}, "")
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return outcome(res, "", "Failed to retrieve Git history"), nil
	}

	commits := []commitEntry{}
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		hash, msg, _ := strings.Cut(line, " ")
		commits = append(commits, commitEntry{Hash: hash, Message: msg})
	}
	return Success("Git history retrieved successfully.").
		With("path", rel).
		With("commits", commits).
		With("command", res.Command).
		String(), nil
}

// GitAddTool stages files.
type GitAddTool struct {
	runner *ShellRunner
}

func (t *GitAddTool) Name() string        { return "git_add" }
func (t *GitAddTool) Description() string { return "Adds file changes to the Git index." }
func (t *GitAddTool) Parameters() map[string]any {
	return object(nil, map[string]any{
		"files": map[string]any{
			"type":        "array",
			"description": "Files or directories to add.",
			"items":       map[string]any{"type": "string"},
		},
		"all": prop("boolean", "Stage every change (git add -A). Cannot be combined with files."),
	})
}
func (t *GitAddTool) RequiresConfirmation() bool { return true }
func (t *GitAddTool) FewShotExamples() string {
	return "Stage 'main.go'.\nStage all changes."
}

func (t *GitAddTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	files := stringSliceArg(args, "files")
	all := boolArg(args, "all", false)
	switch {
	case len(files) == 0 && !all:
		return Failure(`Either files or the "all" flag must be provided.`).String(), nil
	case len(files) > 0 && all:
		return Failure("Cannot use files and all options together.").String(), nil
	}

	addArgs := []string{"add", "-A"}
	if !all {
		addArgs = append([]string{"add", "--"}, files...)
	}
	res, err := t.runner.Run(ctx, "git", addArgs, "")
	if err != nil {
		return "", err
	}
	return outcome(res, "Changes added to index successfully.", "Failed to add changes to index"), nil
}

// GitCommitTool records staged changes, optionally staging first.
type GitCommitTool struct {
	runner *ShellRunner
}

func (t *GitCommitTool) Name() string        { return "git_commit" }
func (t *GitCommitTool) Description() string { return "Commits changes to the Git repository." }
func (t *GitCommitTool) Parameters() map[string]any {
	return object([]string{"message"}, map[string]any{
		"message": prop("string", "The commit message."),
		"files": map[string]any{
			"type":        "array",
			"description": "Files to stage before committing. Without it only already staged changes are committed.",
			"items":       map[string]any{"type": "string"},
		},
		"all":   prop("boolean", "Stage every change before committing."),
		"amend": prop("boolean", "Amend the last commit."),
	})
}
func (t *GitCommitTool) RequiresConfirmation() bool { return true }
func (t *GitCommitTool) FewShotExamples() string {
	return "Commit the staged changes with message 'Fix parser'.\nAmend the last commit message to 'Add tests'."
}

func (t *GitCommitTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	message, _ := stringArg(args, "message")
	files := stringSliceArg(args, "files")
	all := boolArg(args, "all", false)
	amend := boolArg(args, "amend", false)

	if strings.TrimSpace(message) == "" {
		return Failure("Commit message is required.").String(), nil
	}
	if len(files) > 0 && all {
		return Failure("Cannot use files and all options together.").String(), nil
	}

	if len(files) > 0 || all {
		addArgs := []string{"add", "-A"}
		if !all {
			addArgs = append([]string{"add", "--"}, files...)
		}
		res, err := t.runner.Run(ctx, "git", addArgs, "")
		if err != nil {
			return "", err
		}
		if !res.Success() {
			return outcome(res, "", "Failed to add files to staging area"), nil
		}
	}

	commitArgs := []string{"commit", "-m", message}
	if amend {
		commitArgs = append(commitArgs, "--amend")
	}
	res, err := t.runner.Run(ctx, "git", commitArgs, "")
	if err != nil {
		return "", err
	}
	return outcome(res, "Changes committed successfully.", "Failed to commit changes"), nil
}

// GitPushTool pushes to a remote.
type GitPushTool struct {
	runner *ShellRunner
}

func (t *GitPushTool) Name() string        { return "git_push" }
func (t *GitPushTool) Description() string { return "Pushes changes to the remote Git repository." }
func (t *GitPushTool) Parameters() map[string]any {
	return object(nil, map[string]any{
		"remote":       prop("string", `Remote name (e.g. "origin").`),
		"branch":       prop("string", "Branch to push."),
		"set_upstream": prop("boolean", "Set the upstream branch."),
	})
}
func (t *GitPushTool) RequiresConfirmation() bool { return true }
func (t *GitPushTool) FewShotExamples() string {
	return "Push my commits.\nPush branch 'feature/x' to origin and set upstream."
}

func (t *GitPushTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	remote, _ := stringArg(args, "remote")
	branch, _ := stringArg(args, "branch")
	cmdArgs := []string{"push"}
	if boolArg(args, "set_upstream", false) {
		cmdArgs = append(cmdArgs, "--set-upstream")
	}
	if remote != "" {
		cmdArgs = append(cmdArgs, remote)
		if branch != "" {
			cmdArgs = append(cmdArgs, branch)
		}
	}
	res, err := t.runner.Run(ctx, "git", cmdArgs, "")
	if err != nil {
		return "", err
	}
	return outcome(res, "Changes pushed to remote successfully.", "Failed to push changes"), nil
}

// GitPullTool pulls from a remote.
type GitPullTool struct {
	runner *ShellRunner
}

func (t *GitPullTool) Name() string { return "git_pull" }
func (t *GitPullTool) Description() string {
	return "Fetches from and integrates with another repository or a local branch."
}
func (t *GitPullTool) Parameters() map[string]any {
	return object(nil, map[string]any{
		"remote": prop("string", `Remote name (e.g. "origin").`),
		"branch": prop("string", "Branch to pull."),
	})
}
func (t *GitPullTool) RequiresConfirmation() bool { return true }
func (t *GitPullTool) FewShotExamples() string    { return "Pull the latest changes from origin main." }

func (t *GitPullTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	remote, _ := stringArg(args, "remote")
	branch, _ := stringArg(args, "branch")
	cmdArgs := []string{"pull"}
	if remote != "" {
		cmdArgs = append(cmdArgs, remote)
		if branch != "" {
			cmdArgs = append(cmdArgs, branch)
		}
	}
	res, err := t.runner.Run(ctx, "git", cmdArgs, "")
	if err != nil {
		return "", err
	}
	return outcome(res, "Changes pulled successfully.", "Failed to pull changes"), nil
}
