package adapter

import "golang.org/x/sys/unix"

func programCounter(pid int) (uint64, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return 0, err
	}

	return regs.Rip, nil
}
