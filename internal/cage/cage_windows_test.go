//go:build windows

package cage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

func TestCommand_SetsCreateSuspended(t *testing.T) {
	c := New()
	limits := sandbox.Limits{CPUSeconds: 2.5, AddressSpaceMB: 64}

	cmd, err := c.Command(context.Background(), "C:\\self.exe", "C:\\Python\\python.exe", "C:\\Temp\\script.py", limits, []string{"FOO=bar"})
	require.NoError(t, err)
	require.NotNil(t, cmd.SysProcAttr)
	assert.NotZero(t, cmd.SysProcAttr.CreationFlags&createSuspended)
}

func TestSetJobLimits_EncodesCPUAndMemory(t *testing.T) {
	limits := sandbox.Limits{CPUSeconds: 2.0, AddressSpaceMB: 50}

	info := jobLimitInfo(limits)

	assert.Equal(t, uintptr(50*1024*1024), info.ProcessMemoryLimit)
	assert.Equal(t, int64(2*1e7), info.BasicLimitInformation.PerProcessUserTimeLimit)
}
