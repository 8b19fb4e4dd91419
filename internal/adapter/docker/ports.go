package docker

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// AllocateHostPort picks the lowest port in the configured editor range that
// is neither published by another session container nor bound on the host.
// It returns false when the range is invalid or exhausted.
func (d *Driver) AllocateHostPort(ctx context.Context) (int, bool) {
	start, end := d.editor.HostPortStart, d.editor.HostPortEnd
	if start <= 0 || end > 65535 || start > end {
		return 0, false
	}
	used := d.usedHostPorts(ctx)
	for port := start; port <= end; port++ {
		if used[port] {
			continue
		}
		if d.probe(port) {
			return port, true
		}
	}
	return 0, false
}

// usedHostPorts collects host ports already mapped to the editor port by any
// labelled session container, including stopped ones.
func (d *Driver) usedHostPorts(ctx context.Context) map[int]bool {
	res := d.runner.Run(ctx, d.engine("ps", "-a", "--filter", d.labelFilter(), "--format", "{{.Ports}}")...)
	used := make(map[int]bool)
	if !res.OK() {
		return used
	}
	re := regexp.MustCompile(fmt.Sprintf(`:(\d+)->%d/tcp`, d.editor.InternalPort))
	for _, line := range strings.Split(res.Stdout, "\n") {
		for _, m := range re.FindAllStringSubmatch(line, -1) {
			if p, err := strconv.Atoi(m[1]); err == nil {
				used[p] = true
			}
		}
	}
	return used
}

func canBind(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
