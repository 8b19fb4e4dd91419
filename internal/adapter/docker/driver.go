package docker

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/Strob0t/Weaver/internal/config"
)

// CreateResult is the outcome of CreateContainer. Port is 0 when no editor
// port was reserved. NoHostPort is set when creation was refused because the
// editor port range is exhausted or misconfigured; the engine was not invoked.
type CreateResult struct {
	Result
	Port       int
	NoHostPort bool
}

// Driver translates session lifecycle intents into container engine commands.
// Container identity is always derived from the session id; nothing is cached.
type Driver struct {
	runner    Runner
	container config.Container
	workspace config.Workspace
	editor    config.VSCode
	probe     func(port int) bool
}

// Option customizes a Driver.
type Option func(*Driver)

// WithPortProbe replaces the OS-level bind probe used to confirm that a host
// port is free.
func WithPortProbe(probe func(port int) bool) Option {
	return func(d *Driver) { d.probe = probe }
}

// NewDriver creates a Driver issuing commands through runner.
func NewDriver(runner Runner, container config.Container, workspace config.Workspace, editor config.VSCode, opts ...Option) *Driver {
	d := &Driver{
		runner:    runner,
		container: container,
		workspace: workspace,
		editor:    editor,
		probe:     canBind,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ContainerName returns the deterministic container name for a session.
func (d *Driver) ContainerName(sessionID int64) string {
	return fmt.Sprintf("%s-%d", d.container.NamePrefix, sessionID)
}

// WorkspacePath returns the in-container directory a repository is cloned into.
func (d *Driver) WorkspacePath(repoName string) string {
	return path.Join(d.workspace.BasePath, strings.TrimSpace(repoName))
}

// EditorEnabled reports whether sessions expose the embedded editor.
func (d *Driver) EditorEnabled() bool { return d.editor.Enabled }

func (d *Driver) engine(args ...string) []string {
	return append([]string{d.container.Engine}, args...)
}

func (d *Driver) labelFilter() string {
	return "label=" + d.container.Label
}

// Preflight checks that the container engine is reachable.
func (d *Driver) Preflight(ctx context.Context) Result {
	return d.runner.Run(ctx, d.engine("info", "--format", "{{.ServerVersion}}")...)
}

// CreateContainer starts a detached, idle session container labelled with
// the session id. When the editor is enabled a host port is reserved first.
func (d *Driver) CreateContainer(ctx context.Context, sessionID int64) CreateResult {
	args := d.engine("run", "-d",
		"--name", d.ContainerName(sessionID),
		"--label", fmt.Sprintf("%s=%d", d.container.Label, sessionID),
	)
	if d.container.DataVolume != "" {
		args = append(args, "-v", d.container.DataVolume+":"+d.container.DataMountPath)
	}

	var port int
	if d.editor.Enabled {
		p, ok := d.AllocateHostPort(ctx)
		if !ok {
			return CreateResult{
				Result:     Result{ExitCode: 1, Stderr: "No available VSCode host port"},
				NoHostPort: true,
			}
		}
		port = p
		args = append(args, "-p", fmt.Sprintf("%d:%d", port, d.editor.InternalPort))
	}

	args = append(args, d.container.Image, "sleep", "infinity")
	return CreateResult{Result: d.runner.Run(ctx, args...), Port: port}
}

// PrepareWorkspace creates the workspace root inside the container.
func (d *Driver) PrepareWorkspace(ctx context.Context, containerName string) Result {
	return d.runner.Run(ctx, d.engine("exec", containerName, "mkdir", "-p", d.workspace.BasePath)...)
}

// ClearWorkspace removes a previous checkout of repoName, if any.
func (d *Driver) ClearWorkspace(ctx context.Context, containerName, repoName string) Result {
	return d.runner.Run(ctx, d.engine("exec", containerName, "rm", "-rf", d.WorkspacePath(repoName))...)
}

// WriteGitConfig replaces the container user's global git configuration.
// The content is passed as a positional shell argument, never interpolated.
func (d *Driver) WriteGitConfig(ctx context.Context, containerName, content string) Result {
	return d.runner.Run(ctx, d.engine("exec", containerName,
		"sh", "-c", `printf '%s' "$1" > "$HOME/.gitconfig"`, "weaver-gitconfig", content)...)
}

// CloneRepository clones repoURL into the workspace using a per-command auth
// header so the token is never written to the remote URL or git config.
func (d *Driver) CloneRepository(ctx context.Context, containerName, repoURL, token, authUser, repoName string) Result {
	return d.runner.Run(ctx, d.engine("exec", containerName,
		"git", "-c", "http.extraHeader="+authHeader(authUser, token),
		"clone", repoURL, d.WorkspacePath(repoName))...)
}

// GitStatus runs git status --short in the workspace.
func (d *Driver) GitStatus(ctx context.Context, containerName, repoName string) Result {
	return d.git(ctx, containerName, repoName, "status", "--short")
}

// GitCheckout switches the workspace to branch. branch must be validated.
func (d *Driver) GitCheckout(ctx context.Context, containerName, repoName, branch string) Result {
	return d.git(ctx, containerName, repoName, "checkout", branch)
}

// GitPull pulls with a fresh per-command auth header.
func (d *Driver) GitPull(ctx context.Context, containerName, repoName, token, authUser string) Result {
	return d.git(ctx, containerName, repoName, "-c", "http.extraHeader="+authHeader(authUser, token), "pull")
}

// CurrentBranch prints the checked-out branch.
func (d *Driver) CurrentBranch(ctx context.Context, containerName, repoName string) Result {
	return d.git(ctx, containerName, repoName, "rev-parse", "--abbrev-ref", "HEAD")
}

// ListBranches lists local branches, the current one prefixed with "*".
func (d *Driver) ListBranches(ctx context.Context, containerName, repoName string) Result {
	return d.git(ctx, containerName, repoName, "branch", "--list")
}

// ListDirectories lists directories up to depth 2 relative to the workspace.
func (d *Driver) ListDirectories(ctx context.Context, containerName, repoName string) Result {
	return d.runner.Run(ctx, d.engine("exec", "-w", d.WorkspacePath(repoName), containerName,
		"find", ".", "-maxdepth", "2", "-type", "d")...)
}

func (d *Driver) git(ctx context.Context, containerName, repoName string, args ...string) Result {
	argv := d.engine("exec", "-w", d.WorkspacePath(repoName), containerName, "git")
	return d.runner.Run(ctx, append(argv, args...)...)
}

// StartCodeServer launches code-server detached inside the container. It is
// a successful no-op when the editor is disabled.
func (d *Driver) StartCodeServer(ctx context.Context, containerName, repoName string) Result {
	if !d.editor.Enabled {
		return Result{}
	}
	return d.runner.Run(ctx, d.engine("exec", "-d", containerName,
		"code-server",
		"--bind-addr", fmt.Sprintf("0.0.0.0:%d", d.editor.InternalPort),
		"--auth", "none",
		"--disable-telemetry",
		"--disable-update-check",
		d.WorkspacePath(repoName))...)
}

// ResolveCodeServerPort asks the engine which host port maps the editor.
func (d *Driver) ResolveCodeServerPort(ctx context.Context, containerName string) (int, bool) {
	if !d.editor.Enabled {
		return 0, false
	}
	res := d.runner.Run(ctx, d.engine("port", containerName, fmt.Sprintf("%d/tcp", d.editor.InternalPort))...)
	if !res.OK() {
		return 0, false
	}
	return parsePortOutput(res.Stdout)
}

// parsePortOutput picks the IPv4 wildcard mapping, then IPv6, then the first
// line, and returns the port after the last colon.
func parsePortOutput(out string) (int, bool) {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return 0, false
	}
	target := lines[0]
	if l, ok := firstContaining(lines, "0.0.0.0"); ok {
		target = l
	} else if l, ok := firstContaining(lines, ":::"); ok {
		target = l
	}
	i := strings.LastIndex(target, ":")
	if i < 0 {
		return 0, false
	}
	port, err := strconv.Atoi(target[i+1:])
	if err != nil {
		return 0, false
	}
	return port, true
}

func firstContaining(lines []string, sub string) (string, bool) {
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return l, true
		}
	}
	return "", false
}

// StopContainer stops the session container.
func (d *Driver) StopContainer(ctx context.Context, sessionID int64) Result {
	return d.runner.Run(ctx, d.engine("stop", d.ContainerName(sessionID))...)
}

// StartContainer starts a stopped session container.
func (d *Driver) StartContainer(ctx context.Context, sessionID int64) Result {
	return d.runner.Run(ctx, d.engine("start", d.ContainerName(sessionID))...)
}

// RemoveContainer force-removes the session container, running or not.
func (d *Driver) RemoveContainer(ctx context.Context, sessionID int64) Result {
	return d.runner.Run(ctx, d.engine("rm", "-f", d.ContainerName(sessionID))...)
}

func authHeader(user, token string) string {
	return "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+token))
}
