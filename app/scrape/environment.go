package scrape

import (
	"os"
	"strings"
)

type Environment string

const (
	EnvLocal  Environment = "local"
	EnvDocker Environment = "docker"
)

// DetectEnvironment reports whether the process runs inside a
// container. Some sources tolerate datacenter traffic poorly, so the
// active site set depends on this.
func DetectEnvironment() Environment {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return EnvDocker
	}

	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		if strings.Contains(string(data), "docker") {
			return EnvDocker
		}
	}

	if os.Getenv("DOCKER_ENV") == "true" {
		return EnvDocker
	}

	return EnvLocal
}
