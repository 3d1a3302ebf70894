//go:build windows

package procutil

import (
	"syscall"
	"time"
	"unsafe"
)

var (
	modkernel32         = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess     = modkernel32.NewProc("OpenProcess")
	procGetProcessTimes = modkernel32.NewProc("GetProcessTimes")
	procCloseHandle     = modkernel32.NewProc("CloseHandle")
)

const processQueryLimitedInformation = 0x1000

func isAliveOS(pid int, expectedStartTime int64) bool {
	handle, _, _ := procOpenProcess.Call(
		processQueryLimitedInformation,
		0,
		uintptr(pid),
	)
	if handle == 0 {
		return false
	}
	defer procCloseHandle.Call(handle)

	if expectedStartTime == 0 {
		return true
	}

	var creationTime, exitTime, kernelTime, userTime syscall.Filetime
	ret, _, _ := procGetProcessTimes.Call(
		handle,
		uintptr(unsafe.Pointer(&creationTime)),
		uintptr(unsafe.Pointer(&exitTime)),
		uintptr(unsafe.Pointer(&kernelTime)),
		uintptr(unsafe.Pointer(&userTime)),
	)
	if ret == 0 {
		return true
	}

	diff := filetimeToUnix(creationTime) - expectedStartTime
	if diff < 0 {
		diff = -diff
	}
	return diff <= 2
}

func filetimeToUnix(ft syscall.Filetime) int64 {
	nsec := int64(ft.HighDateTime)<<32 + int64(ft.LowDateTime)
	nsec -= 116444736000000000
	if nsec < 0 {
		return 0
	}
	return time.Unix(0, nsec*100).Unix()
}
