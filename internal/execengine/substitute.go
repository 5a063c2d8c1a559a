package execengine

import (
	"io"
	"os"
	"os/exec"

	"github.com/joshuarubin/rsh/internal/outbuf"
)

// substitute implements expand.Substituter: spec.md §4.5 pass 3 replaces
// $(...) / `...` with the stdout of a subshell that re-parses the inner
// string and evaluates it in a freshly forked child whose stdout and
// stderr are wired to a pipe. The child is this same binary re-invoked
// in its hidden __eval__ mode (the same path buildCmd in pipeline.go
// uses), and its pipe output is captured through the concurrent buffer
// in internal/outbuf, so a long-running substitution's partial output
// stays inspectable while it runs.
func (e *Executor) substitute(src string) (string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	cmd := exec.Command(e.ReexecArgv0, "__eval__", src)
	cmd.Env = append(append([]string{}, os.Environ()...), e.Ctx.Environ()...)
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.SysProcAttr = jobSysProcAttr(0)

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return "", err
	}
	w.Close()

	done := make(chan struct{})
	buf := outbuf.New(done)
	copyDone := make(chan struct{})
	go func() {
		_, _ = io.Copy(buf, r)
		r.Close()
		close(copyDone)
	}()

	_ = cmd.Wait()
	// cmd.Wait only waits for the child to exit; bytes it wrote just
	// before exiting may still be sitting unread in the pipe. Wait for
	// the copy goroutine to actually drain it before declaring done, or
	// ReadAll can return a truncated capture.
	<-copyDone
	close(done)

	return string(outbuf.ReadAll(buf)), nil
}
