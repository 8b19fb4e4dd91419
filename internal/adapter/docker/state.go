package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Strob0t/Weaver/internal/domain/session"
)

// ListSessionContainerStates returns the live state of every labelled session
// container. An engine failure yields an empty map.
func (d *Driver) ListSessionContainerStates(ctx context.Context) map[int64]session.ContainerState {
	res := d.runner.Run(ctx, d.engine("ps", "-a",
		"--filter", d.labelFilter(),
		"--format", fmt.Sprintf(`{{.Label %q}}|{{.Status}}`, d.container.Label))...)
	states := make(map[int64]session.ContainerState)
	if !res.OK() {
		return states
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		idText, status, found := strings.Cut(strings.TrimSpace(line), "|")
		if !found {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idText), 10, 64)
		if err != nil {
			continue
		}
		states[id] = session.ParseContainerState(status)
	}
	return states
}

// ListSessionContainers returns the session ids of all labelled containers.
func (d *Driver) ListSessionContainers(ctx context.Context) ([]int64, Result) {
	res := d.runner.Run(ctx, d.engine("ps", "-a",
		"--filter", d.labelFilter(),
		"--format", fmt.Sprintf(`{{.Names}}|{{.Label %q}}`, d.container.Label))...)
	if !res.OK() {
		return nil, res
	}
	var ids []int64
	seen := make(map[int64]bool)
	for _, line := range strings.Split(res.Stdout, "\n") {
		_, idText, found := strings.Cut(strings.TrimSpace(line), "|")
		if !found {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idText), 10, 64)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, res
}

// ResolveContainerState inspects one session container. exists is false when
// the engine does not know the container.
func (d *Driver) ResolveContainerState(ctx context.Context, sessionID int64) (state session.ContainerState, exists bool) {
	res := d.runner.Run(ctx, d.engine("inspect", "-f", "{{.State.Status}}", d.ContainerName(sessionID))...)
	if !res.OK() {
		return "", false
	}
	return session.ParseContainerState(res.Stdout), true
}
