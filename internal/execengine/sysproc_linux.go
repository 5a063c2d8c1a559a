package execengine

import "syscall"

// jobSysProcAttr puts a forked stage into the pipeline's shared process
// group so job control (fg/bg, SIGTSTP/SIGCONT to the whole pipeline) can
// target one pgid rather than each stage's pid individually, per spec.md
// §4.6 step 3's "establish the process group (pgid = first child's pid)".
// pgid 0 means this is the first stage: the kernel assigns pgid = its own
// pid, which the caller then reuses as every later stage's target.
func jobSysProcAttr(pgid int) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
}
