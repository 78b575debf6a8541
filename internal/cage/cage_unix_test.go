//go:build !windows

package cage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

func TestCommand_ConfiguresShimInvocation(t *testing.T) {
	c := New()
	limits := sandbox.Limits{CPUSeconds: 2.5, AddressSpaceMB: 64}

	cmd, err := c.Command(context.Background(), "/bin/self", "/usr/bin/python3", "/tmp/script.py", limits, []string{"FOO=bar"})
	require.NoError(t, err)

	require.Len(t, cmd.Args, 6)
	assert.Equal(t, "/bin/self", cmd.Args[0])
	assert.Equal(t, ShimArg, cmd.Args[1])
	assert.Equal(t, "2.5", cmd.Args[2])
	assert.Equal(t, "64", cmd.Args[3])
	assert.Equal(t, "/usr/bin/python3", cmd.Args[4])
	assert.Equal(t, "/tmp/script.py", cmd.Args[5])
	assert.Len(t, cmd.ExtraFiles, 1)
	assert.NotNil(t, cmd.SysProcAttr)

	c.Release()
}

func TestRunShim_RejectsWrongArgCount(t *testing.T) {
	err := RunShim([]string{"only", "two"})
	assert.Error(t, err)
}

func TestRunShim_RejectsBadCPUSeconds(t *testing.T) {
	err := RunShim([]string{"not-a-number", "100", "/usr/bin/python3", "/tmp/s.py"})
	assert.Error(t, err)
}

func TestRunShim_RejectsBadMemoryLimit(t *testing.T) {
	err := RunShim([]string{"1.0", "not-a-number", "/usr/bin/python3", "/tmp/s.py"})
	assert.Error(t, err)
}
