package docker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// RunSpec describes a throwaway `docker run --rm` of a scanner image.
type RunSpec struct {
	Name    string // --name, so a killed client can still be cleaned up
	Image   string
	Network string            // e.g. "host" so the tool reaches a local endpoint
	Mounts  map[string]string // host path -> container path
	Env     map[string]string
	User    string
	Args    []string // entrypoint arguments
}

// Command builds the argv for the spec, starting with the docker binary.
// Mounts and env are emitted in sorted order so transcripts are stable.
func Command(binary string, spec RunSpec) []string {
	if binary == "" {
		binary = "docker"
	}
	cmd := []string{binary, "run", "--rm"}
	if spec.Name != "" {
		cmd = append(cmd, "--name", spec.Name)
	}
	if spec.Network != "" {
		cmd = append(cmd, "--network", spec.Network)
	}
	if spec.User != "" {
		cmd = append(cmd, "--user", spec.User)
	}

	hosts := make([]string, 0, len(spec.Mounts))
	for h := range spec.Mounts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	for _, h := range hosts {
		cmd = append(cmd, "-v", fmt.Sprintf("%s:%s:rw", h, spec.Mounts[h]))
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd = append(cmd, "-e", fmt.Sprintf("%s=%s", k, spec.Env[k]))
	}

	cmd = append(cmd, spec.Image)
	return append(cmd, spec.Args...)
}

// RemoveCommand force-removes the named container. Killing the docker client
// does not stop the container it started.
func RemoveCommand(binary, name string) []string {
	if binary == "" {
		binary = "docker"
	}
	return []string{binary, "rm", "--force", name}
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// ContainerName joins parts into a valid container name.
func ContainerName(parts ...string) string {
	name := invalidNameChars.ReplaceAllString(strings.Join(parts, "-"), "-")
	name = strings.Trim(name, "-._")
	if name == "" {
		return "scanpipe"
	}
	return name
}
