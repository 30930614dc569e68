package capacity

import (
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
)

type ProviderType string

const (
	ProviderLocal  ProviderType = "local"
	ProviderStatic ProviderType = "static"
)

// NewProvider builds a capacity provider by type. Unknown types fall back
// to the local host provider.
func NewProvider(providerType ProviderType, staticCPUs int, staticMemory uint64) interfaces.CapacityProvider {
	switch providerType {
	case ProviderStatic:
		return &StaticProvider{CPUs: staticCPUs, Memory: staticMemory}
	default:
		return NewLocalProvider()
	}
}
