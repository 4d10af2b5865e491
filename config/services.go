package config

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeSync runs the periodic chain reconciler.
	ServiceModeSync ServiceMode = "sync"
	// ServiceModeArchive runs the archival pin-verification sweeper.
	ServiceModeArchive ServiceMode = "archive"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeSync, ServiceModeArchive}
}

// ParseServices parses a comma-delimited string of service names and returns
// the enabled services. It validates that all names are valid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeSync, ServiceModeArchive:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: sync, archive)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}
