// Package registry provides lookup of system classification and contact
// information for evidence gathering. Lookups fail open: an unknown system is
// reported as internal with no contact info, because missing registry data
// must never block the analysis pipeline.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// System classification values.
const (
	TypeInternal = "internal"
	TypeExternal = "external"
)

// SystemInfo describes one registered system.
type SystemInfo struct {
	Name            string   `yaml:"name"`
	Type            string   `yaml:"type"`
	ContactInfo     string   `yaml:"contact_info"`
	RecentIncidents []string `yaml:"recent_incidents"`
}

// Registry holds system metadata. Read-only after construction.
type Registry struct {
	systems map[string]SystemInfo
}

type registryFile struct {
	Systems []SystemInfo `yaml:"systems"`
}

// New builds a registry from the given systems.
func New(systems ...SystemInfo) *Registry {
	r := &Registry{systems: make(map[string]SystemInfo, len(systems))}
	for _, s := range systems {
		r.systems[s.Name] = s
	}
	return r
}

// LoadFile reads a YAML registry file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid registry file %s: %w", path, err)
	}
	return New(f.Systems...), nil
}

// Default returns the built-in registry used when no file is configured.
func Default() *Registry {
	return New(
		SystemInfo{Name: "PaymentGateway", Type: TypeExternal, ContactInfo: "partner-support@paymentgateway.example.com",
			RecentIncidents: []string{"API latency increase (resolved)", "30 minute partial outage"}},
		SystemInfo{Name: "PaymentService", Type: TypeInternal, ContactInfo: "backend-team@company.example.com"},
		SystemInfo{Name: "RefundService", Type: TypeInternal, ContactInfo: "backend-team@company.example.com"},
		SystemInfo{Name: "OrderService", Type: TypeInternal, ContactInfo: "backend-team@company.example.com"},
		SystemInfo{Name: "MainService", Type: TypeInternal, ContactInfo: "backend-team@company.example.com"},
		SystemInfo{Name: "EmailService", Type: TypeExternal, ContactInfo: "support@emailprovider.example.com"},
		SystemInfo{Name: "ShippingAPI", Type: TypeExternal, ContactInfo: "api-support@shipping.example.com"},
	)
}

// Lookup returns info for the named system. Unknown systems are assumed
// internal with no contact info.
func (r *Registry) Lookup(name string) SystemInfo {
	if info, ok := r.systems[name]; ok {
		return info
	}
	return SystemInfo{Name: name, Type: TypeInternal}
}
