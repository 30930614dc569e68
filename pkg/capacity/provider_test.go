package capacity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
)

func TestReadMemTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	content := "MemTotal:       16384256 kB\nMemFree:         1024000 kB\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	total, err := readMemTotal(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(16384256*1024), total)
}

func TestReadMemTotalMissingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	require.NoError(t, os.WriteFile(path, []byte("MemFree: 1 kB\n"), 0o644))

	_, err := readMemTotal(path)
	assert.Error(t, err)
}

func TestLocalProviderReportsCPUs(t *testing.T) {
	p := NewLocalProvider()
	hc, err := p.Capacity(context.Background())
	require.NoError(t, err)
	assert.Greater(t, hc.CPUCount, 0)
}

func TestStaticProvider(t *testing.T) {
	p := NewProvider(ProviderStatic, 4, 8<<30)
	hc, err := p.Capacity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, hc.CPUCount)
	assert.Equal(t, uint64(8<<30), hc.MemoryBytes)
}

func TestFactoryDefaultsToLocal(t *testing.T) {
	p := NewProvider("", 0, 0)
	_, ok := p.(*LocalProvider)
	assert.True(t, ok)
}

func TestRecommendedWorkersClamped(t *testing.T) {
	hc := &interfaces.HostCapacity{CPUCount: 8}
	assert.Equal(t, 8, RecommendedWorkers(hc, 1, 16))
	assert.Equal(t, 4, RecommendedWorkers(hc, 1, 4))
	assert.Equal(t, 12, RecommendedWorkers(&interfaces.HostCapacity{CPUCount: 2}, 12, 16))
	assert.Equal(t, 1, RecommendedWorkers(&interfaces.HostCapacity{CPUCount: 0}, 0, 0))
}
