//go:build linux

package pin

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const keyMax = 0x2ff

// eviocgkey builds EVIOCGKEY(len): _IOC(_IOC_READ, 'E', 0x18, len).
func eviocgkey(n int) uintptr {
	const iocRead = 2
	return uintptr(iocRead)<<30 | uintptr(n)<<16 | uintptr('E')<<8 | 0x18
}

// keyHeld asks the kernel whether code is currently held on f.
func keyHeld(f *os.File, code uint16) (bool, error) {
	if code > keyMax {
		return false, unix.EINVAL
	}
	rc, err := f.SyscallConn()
	if err != nil {
		return false, err
	}

	var bits [keyMax/8 + 1]byte
	var errno unix.Errno
	// Control keeps the descriptor non-blocking so Close can interrupt reads.
	err = rc.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, eviocgkey(len(bits)), uintptr(unsafe.Pointer(&bits[0])))
	})
	if err != nil {
		return false, err
	}
	if errno != 0 {
		return false, errno
	}
	return bits[code/8]&(1<<(code%8)) != 0, nil
}
