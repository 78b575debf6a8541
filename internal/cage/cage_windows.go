//go:build windows

package cage

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"unsafe"

	"github.com/nextlevelbuilder/sandboxd/internal/logging"
	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

// Windows API surface for Job Objects, grounded on kernel32.dll — the
// only correct way to cap CPU/memory for a child process on this
// platform; no third-party wrapper in the corpus does this better than
// calling the OS directly.
const (
	createSuspended        = 0x00000004
	processSetQuota        = 0x0100
	processTerminate       = 0x0001
	threadSuspendResume    = 0x0002

	jobObjectLimitProcessTime      = 0x00000002
	jobObjectLimitActiveProcess    = 0x00000008
	jobObjectLimitProcessMemory    = 0x00000100
	jobObjectLimitJobMemory        = 0x00000200
	jobObjectLimitKillOnJobClose   = 0x00002000
	jobObjectExtendedLimitInfoKind = 9

	th32csSnapThread = 0x00000004
)

type jobobjectBasicLimitInformation struct {
	PerProcessUserTimeLimit int64
	PerJobUserTimeLimit     int64
	LimitFlags              uint32
	MinimumWorkingSetSize   uintptr
	MaximumWorkingSetSize   uintptr
	ActiveProcessLimit      uint32
	Affinity                uintptr
	PriorityClass           uint32
	SchedulingClass         uint32
}

type ioCounters struct {
	ReadOperationCount  uint64
	WriteOperationCount uint64
	OtherOperationCount uint64
	ReadTransferCount   uint64
	WriteTransferCount  uint64
	OtherTransferCount  uint64
}

type jobobjectExtendedLimitInformation struct {
	BasicLimitInformation jobobjectBasicLimitInformation
	IoInfo                ioCounters
	ProcessMemoryLimit    uintptr
	JobMemoryLimit        uintptr
	PeakProcessMemoryUsed uintptr
	PeakJobMemoryUsed     uintptr
}

type threadEntry32 struct {
	Size           uint32
	Usage          uint32
	ThreadID       uint32
	OwnerProcessID uint32
	BasePri        int32
	DeltaPri       int32
	Flags          uint32
}

var (
	kernel32                      = syscall.NewLazyDLL("kernel32.dll")
	procCreateJobObjectW          = kernel32.NewProc("CreateJobObjectW")
	procAssignProcessToJobObject  = kernel32.NewProc("AssignProcessToJobObject")
	procSetInformationJobObject   = kernel32.NewProc("SetInformationJobObject")
	procCreateToolhelp32Snapshot  = kernel32.NewProc("CreateToolhelp32Snapshot")
	procThread32First             = kernel32.NewProc("Thread32First")
	procThread32Next               = kernel32.NewProc("Thread32Next")
	procOpenThread                = kernel32.NewProc("OpenThread")
	procResumeThread               = kernel32.NewProc("ResumeThread")
)

// windowsCage enforces limits with a Job Object. The interpreter is
// started CREATE_SUSPENDED; after AssignProcessToJobObject succeeds the
// cage resumes it, so the caps apply before the interpreter executes a
// single instruction — the same suspend -> assign -> resume ordering as
// _examples/original_source/python_code_sandbox/safe_executor.py's
// win32job usage. CPU time keeps sub-second precision (100ns units),
// unlike the Unix cage's whole-second truncation — an intentional
// asymmetry, see spec.md §9.
type windowsCage struct {
	job    syscall.Handle
	note   string
	limits sandbox.Limits
}

// New returns the Windows ResourceCage.
func New() Cage {
	return &windowsCage{}
}

func (c *windowsCage) Command(ctx context.Context, selfPath, interpreter, scriptPath string, limits sandbox.Limits, env []string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, interpreter, scriptPath)
	cmd.Env = env
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createSuspended | syscall.CREATE_NEW_PROCESS_GROUP,
	}
	c.limits = limits
	return cmd, nil
}

func (c *windowsCage) Attach(cmd *exec.Cmd) error {
	job, err := createJobObject()
	if err != nil {
		c.note = fmt.Sprintf("Job Object unavailable (%v); resource limits not enforced", err)
		logging.CageWarn("windows cage: %s", c.note)
		return resumeProcess(cmd)
	}
	c.job = job

	if err := setJobLimits(job, c.limits); err != nil {
		c.note = fmt.Sprintf("Job Object limit configuration failed (%v); resource limits not enforced", err)
		logging.CageWarn("windows cage: %s", c.note)
		return resumeProcess(cmd)
	}

	if err := assignProcessToJob(job, cmd.Process.Pid); err != nil {
		c.note = fmt.Sprintf("could not assign process to Job Object (%v); resource limits not enforced", err)
		logging.CageWarn("windows cage: %s", c.note)
		return resumeProcess(cmd)
	}

	c.note = "Windows Job Object active: CPU time and address space enforced"
	return resumeProcess(cmd)
}

func (c *windowsCage) Release() {
	if c.job != 0 {
		_ = syscall.CloseHandle(c.job)
		c.job = 0
	}
}

func (c *windowsCage) PlatformNote() string { return c.note }

func createJobObject() (syscall.Handle, error) {
	h, _, err := procCreateJobObjectW.Call(0, 0)
	if h == 0 {
		return 0, fmt.Errorf("CreateJobObjectW: %w", err)
	}
	return syscall.Handle(h), nil
}

func setJobLimits(job syscall.Handle, limits sandbox.Limits) error {
	info := jobLimitInfo(limits)

	ret, _, err := procSetInformationJobObject.Call(
		uintptr(job),
		jobObjectExtendedLimitInfoKind,
		uintptr(unsafe.Pointer(&info)),
		unsafe.Sizeof(info),
	)
	if ret == 0 {
		return fmt.Errorf("SetInformationJobObject: %w", err)
	}
	return nil
}

// jobLimitInfo encodes limits as the extended limit information that
// setJobLimits passes to SetInformationJobObject.
func jobLimitInfo(limits sandbox.Limits) jobobjectExtendedLimitInformation {
	var info jobobjectExtendedLimitInformation
	info.BasicLimitInformation.LimitFlags = jobObjectLimitKillOnJobClose

	if limits.AddressSpaceMB > 0 {
		bytes := uintptr(limits.AddressSpaceMB) * 1024 * 1024
		info.ProcessMemoryLimit = bytes
		info.JobMemoryLimit = bytes
		info.BasicLimitInformation.LimitFlags |= jobObjectLimitProcessMemory | jobObjectLimitJobMemory
	}
	if limits.CPUSeconds > 0 {
		// Sub-second precision preserved: 100-nanosecond units.
		info.BasicLimitInformation.PerProcessUserTimeLimit = int64(limits.CPUSeconds * 1e7)
		info.BasicLimitInformation.LimitFlags |= jobObjectLimitProcessTime
	}
	info.BasicLimitInformation.LimitFlags |= jobObjectLimitActiveProcess
	info.BasicLimitInformation.ActiveProcessLimit = 1
	return info
}

func assignProcessToJob(job syscall.Handle, pid int) error {
	h, err := syscall.OpenProcess(processSetQuota|processTerminate, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("OpenProcess: %w", err)
	}
	defer syscall.CloseHandle(h)

	ret, _, lastErr := procAssignProcessToJobObject.Call(uintptr(job), uintptr(h))
	if ret == 0 {
		return fmt.Errorf("AssignProcessToJobObject: %w", lastErr)
	}
	return nil
}

// resumeProcess locates the child's suspended primary thread and resumes
// it. os/exec.Cmd never exposes the thread handle CreateProcess returns,
// so the cage walks a thread snapshot filtered to the child's PID —
// there is exactly one thread at this point, since the interpreter
// hasn't run far enough to spawn more.
func resumeProcess(cmd *exec.Cmd) error {
	tid, err := findPrimaryThread(uint32(cmd.Process.Pid))
	if err != nil {
		return fmt.Errorf("locate suspended thread: %w", err)
	}

	h, _, err := procOpenThread.Call(uintptr(threadSuspendResume), 0, uintptr(tid))
	if h == 0 {
		return fmt.Errorf("OpenThread: %w", err)
	}
	defer syscall.CloseHandle(syscall.Handle(h))

	if ret, _, err := procResumeThread.Call(h); ret == 0xFFFFFFFF {
		return fmt.Errorf("ResumeThread: %w", err)
	}
	return nil
}

func findPrimaryThread(pid uint32) (uint32, error) {
	snap, _, err := procCreateToolhelp32Snapshot.Call(uintptr(th32csSnapThread), 0)
	if snap == 0 || snap == ^uintptr(0) {
		return 0, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer syscall.CloseHandle(syscall.Handle(snap))

	var entry threadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	ret, _, _ := procThread32First.Call(snap, uintptr(unsafe.Pointer(&entry)))
	for ret != 0 {
		if entry.OwnerProcessID == pid {
			return entry.ThreadID, nil
		}
		ret, _, _ = procThread32Next.Call(snap, uintptr(unsafe.Pointer(&entry)))
	}
	return 0, fmt.Errorf("no thread found for pid %d", pid)
}
