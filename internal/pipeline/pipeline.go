// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package pipeline spawns a child process wired to buffer regions
// instead of the controlling terminal: a subprocess filter or pipe
// that reads some bytes of the buffer as stdin and/or delivers its
// stdout/stderr back into the buffer, servicing the pipes with
// non-blocking I/O so writes and reads cannot deadlock each other.
// Run blocks its caller until the child has exited (spec.md §4.7).
package pipeline

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// FD selects how one of the child's three standard streams is wired.
type FD int

const (
	// FDNull connects the stream to /dev/null.
	FDNull FD = iota
	// FDTty connects the stream directly to the controlling terminal,
	// bypassing the editor (used for full-screen child programs).
	FDTty
	// FDPipe routes the stream through a pipe, fed from or drained
	// into a buffer region by the poll loop.
	FDPipe
)

// Config describes one spawn request.
type Config struct {
	Argv  []string
	Stdin FD
	// Stdout and Stderr are typically both FDPipe for a filter, both
	// FDTty for a full-screen program, or FDNull for fire-and-forget.
	// stderr-as-Pipe alongside stdin/stdout both FDPipe is not
	// supported (spec.md §4.7): a filter's stderr is either Null,
	// Tty, or the sole Pipe of a dedicated stderr-capture spawn.
	Stdout FD
	Stderr FD

	// Input is the bytes fed to the child's stdin when Stdin == FDPipe.
	Input []byte

	// Quiet marks a silent spawn (execrouter sets it for ActNull).
	// Start and Run do not read it: this package neither hands the
	// terminal over to the child nor prints a completion status line.
	Quiet bool
}

// Result collects everything a spawn produced once the child exited.
type Result struct {
	Stdout []byte
	Stderr []byte

	// ExitCode follows spec.md's wait-policy encoding: 0 for a clean
	// exit, the exit(3) status for a nonzero exit, or (signum << 8)
	// if the child was killed by a signal.
	ExitCode int

	// Err is the first IoErr-class failure seen while piping the
	// child's fds (a poll/read/write error, or waitpid itself
	// failing), independent of ExitCode. A child that merely exits
	// nonzero is not an Err; a pipe the editor could not service is.
	Err error
}

// ErrChildDidNotReadAllData is reported when the child's stdout pipe
// hits EOF while stdin still had unsent bytes queued — the child
// exited, or stopped reading, before consuming everything written to
// it. Without a stdout pipe this check does not apply; a failed write
// to stdin is reported as that write's own error.
var ErrChildDidNotReadAllData = errors.New("pipeline: command did not read all data")

// spawnTimeout bounds how long Run will poll before giving up on a
// child that never closes its pipes (a misbehaving filter) and
// killing it outright.
const spawnTimeout = 10 * time.Minute

// ErrSpawnTimedOut is Result.Err when spawnTimeout elapsed before the
// child's pipes drained, after which Run killed it.
var ErrSpawnTimedOut = errors.New("pipeline: child exceeded spawn timeout, killed")

// Pipeline runs one Config to completion, non-blockingly multiplexing
// the child's pipe fds via a poll loop so a large write to stdin and a
// slow drain of stdout never deadlock each other.
type Pipeline struct {
	cmd *exec.Cmd

	stdinW  *os.File
	stdoutR *os.File
	stderrR *os.File

	input    []byte
	inputOff int

	outBuf bytes.Buffer
	errBuf bytes.Buffer

	ioErr error
}

// Start launches the child described by cfg. The caller must call
// Run to drive the poll loop to completion (or Kill to abort early).
func Start(cfg Config) (*Pipeline, error) {
	if len(cfg.Argv) == 0 {
		return nil, &os.PathError{Op: "pipeline", Path: "", Err: os.ErrInvalid}
	}

	p := &Pipeline{input: cfg.Input}
	p.cmd = exec.Command(cfg.Argv[0], cfg.Argv[1:]...)
	// Setpgid lets Kill/SIGINT reach the whole process group a
	// full-screen child may have forked off (e.g. a pager).
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var closeAfterStart []*os.File

	stdin, childStdin, err := wireStdin(p, cfg.Stdin)
	if err != nil {
		return nil, err
	}
	p.cmd.Stdin = stdin
	if childStdin != nil {
		closeAfterStart = append(closeAfterStart, childStdin)
	}

	stdout, childStdout, err := wireOut(cfg.Stdout, &p.stdoutR, os.Stdout)
	if err != nil {
		closeFiles(closeAfterStart)
		return nil, err
	}
	p.cmd.Stdout = stdout
	if childStdout != nil {
		closeAfterStart = append(closeAfterStart, childStdout)
	}

	stderr, childStderr, err := wireOut(cfg.Stderr, &p.stderrR, os.Stderr)
	if err != nil {
		closeFiles(closeAfterStart)
		return nil, err
	}
	p.cmd.Stderr = stderr
	if childStderr != nil {
		closeAfterStart = append(closeAfterStart, childStderr)
	}

	if err := p.cmd.Start(); err != nil {
		closeFiles(closeAfterStart)
		return nil, err
	}

	// The child has its own copies of these fds now (inherited across
	// fork/exec); holding them open in the editor process itself is a
	// leak and, for the pipe ends, would stop the child ever seeing
	// EOF/POLLHUP once it closes its side. See spec.md §4.7 step 4,
	// "In the parent: close all child-side fd copies."
	closeFiles(closeAfterStart)

	return p, nil
}

func closeFiles(fs []*os.File) {
	for _, f := range fs {
		f.Close()
	}
}

// wireStdin returns the *os.File to assign to cmd.Stdin and, when
// that file is purely the child's side of a pipe the parent must not
// hold onto (FDNull's /dev/null handle, or FDPipe's read end), the
// same file again so the caller can close it once Start succeeds.
func wireStdin(p *Pipeline, mode FD) (stdin, childSide *os.File, err error) {
	switch mode {
	case FDNull:
		f, err := os.Open(os.DevNull)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	case FDTty:
		return os.Stdin, nil, nil
	case FDPipe:
		r, w, err := os.Pipe()
		if err != nil {
			return nil, nil, err
		}
		if err := unix.SetNonblock(int(w.Fd()), true); err != nil {
			r.Close()
			w.Close()
			return nil, nil, err
		}
		p.stdinW = w
		return r, r, nil
	}
	return nil, nil, nil
}

// wireOut is wireStdin's mirror for stdout/stderr: it returns the
// io.Writer to assign to cmd.Stdout/cmd.Stderr, the child-side file
// the parent must close after Start, and records its own read end in
// *keep for the poll loop to drain. tty is os.Stdout or os.Stderr,
// whichever this stream is, so FDTty wires the right terminal fd.
func wireOut(mode FD, keep **os.File, tty *os.File) (out io.Writer, childSide *os.File, err error) {
	switch mode {
	case FDNull:
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	case FDTty:
		return tty, nil, nil
	case FDPipe:
		r, w, err := os.Pipe()
		if err != nil {
			return nil, nil, err
		}
		if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
			r.Close()
			w.Close()
			return nil, nil, err
		}
		*keep = r
		return w, w, nil
	}
	return nil, nil, nil
}

// Run drives the poll loop until the child's pipes are drained and it
// has exited, then returns the accumulated result.
func (p *Pipeline) Run() Result {
	deadline := time.Now().Add(spawnTimeout)
	pollFDs := p.pollSet()

	for p.stdinW != nil || p.stdoutR != nil || p.stderrR != nil {
		if len(pollFDs) == 0 {
			break
		}
		if time.Now().After(deadline) {
			p.Kill(syscall.SIGKILL)
			if p.ioErr == nil {
				p.ioErr = ErrSpawnTimedOut
			}
			break
		}

		n, err := unix.Poll(pollFDs, 250)
		if err != nil && err != unix.EINTR {
			if p.ioErr == nil {
				p.ioErr = err
			}
			break
		}
		if n > 0 {
			p.service(pollFDs)
		}
		pollFDs = p.pollSet()
	}

	code, waitErr := p.wait()
	if waitErr != nil && p.ioErr == nil {
		p.ioErr = waitErr
	}

	return Result{
		Stdout:   p.outBuf.Bytes(),
		Stderr:   p.errBuf.Bytes(),
		ExitCode: code,
		Err:      p.ioErr,
	}
}

// wait waitpid()s the child unconditionally and encodes its exit
// status per spec.md: 0 for success, the exit(3) argument for a
// normal nonzero exit, or (signum << 8) if a signal killed it. A
// non-ExitError failure from Wait itself (the process was never
// started, or was already reaped) is returned as waitErr rather than
// folded into the exit code.
func (p *Pipeline) wait() (code int, waitErr error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return -1, err
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			return int(ws.Signal()) << 8, nil
		}
		return ws.ExitStatus(), nil
	}
	return ee.ExitCode(), nil
}

func (p *Pipeline) pollSet() []unix.PollFd {
	var fds []unix.PollFd
	if p.stdinW != nil {
		fds = append(fds, unix.PollFd{Fd: int32(p.stdinW.Fd()), Events: unix.POLLOUT})
	}
	if p.stdoutR != nil {
		fds = append(fds, unix.PollFd{Fd: int32(p.stdoutR.Fd()), Events: unix.POLLIN})
	}
	if p.stderrR != nil {
		fds = append(fds, unix.PollFd{Fd: int32(p.stderrR.Fd()), Events: unix.POLLIN})
	}
	return fds
}

func (p *Pipeline) service(fds []unix.PollFd) {
	for _, pf := range fds {
		switch {
		case p.stdinW != nil && pf.Fd == int32(p.stdinW.Fd()):
			if pf.Revents&(unix.POLLOUT|unix.POLLERR|unix.POLLHUP) != 0 {
				p.drainInput()
			}
		case p.stdoutR != nil && pf.Fd == int32(p.stdoutR.Fd()):
			if pf.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				eof := p.fillFrom(p.stdoutR, &p.outBuf, &p.stdoutR)
				if eof && p.stdinW != nil && p.inputOff < len(p.input) && p.ioErr == nil {
					p.ioErr = ErrChildDidNotReadAllData
				}
			}
		case p.stderrR != nil && pf.Fd == int32(p.stderrR.Fd()):
			if pf.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				p.fillFrom(p.stderrR, &p.errBuf, &p.stderrR)
			}
		}
	}
}

func (p *Pipeline) drainInput() {
	if p.inputOff >= len(p.input) {
		p.stdinW.Close()
		p.stdinW = nil
		return
	}
	n, err := p.stdinW.Write(p.input[p.inputOff:min(p.inputOff+32<<10, len(p.input))])
	if n > 0 {
		p.inputOff += n
	}
	if err != nil {
		if p.ioErr == nil {
			p.ioErr = err
		}
		p.stdinW.Close()
		p.stdinW = nil
		return
	}
	if p.inputOff >= len(p.input) {
		p.stdinW.Close()
		p.stdinW = nil
	}
}

// fillFrom reads whatever is ready from r into buf, closing r and
// clearing *slot once it hits EOF or a read error (recorded into
// p.ioErr if not a plain EOF). It reports whether r reached EOF.
func (p *Pipeline) fillFrom(r *os.File, buf *bytes.Buffer, slot **os.File) (eof bool) {
	chunk := make([]byte, 32<<10)
	n, err := r.Read(chunk)
	if n > 0 {
		buf.Write(chunk[:n])
	}
	if err != nil {
		if err != io.EOF && p.ioErr == nil {
			p.ioErr = err
		}
		r.Close()
		*slot = nil
		return true
	}
	return false
}

// Kill sends sig to the child's entire process group, forwarding a
// terminal SIGINT to any grandchildren a full-screen filter spawned.
func (p *Pipeline) Kill(sig syscall.Signal) error {
	return unix.Kill(-p.cmd.Process.Pid, sig)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ErrorFormat describes one compiler/linter diagnostic line format,
// used to parse a filter's stderr (or stdout, for the Msg action)
// into buffer-jumpable messages. Pattern must name its capture groups
// "file", "line", "col" (optional), and "message"; an Ignore format
// matches lines that should be dropped rather than turned into a
// Message (continuation lines, "^~~~" carets, "Note:" asides).
type ErrorFormat struct {
	Name    string
	Pattern string
	Ignore  bool
}

// DefaultErrorFormats mirrors the small built-in compiler-format
// table a filter's output is matched against when the caller asks for
// message parsing (spec.md §4.7's "compiler-style stderr parsing"
// mode and §4.8's Msg/ErrMsg actions). Entries are tried in order;
// the first match wins, the same way handle_error_msg's format list
// is scanned top to bottom.
var DefaultErrorFormats = []ErrorFormat{
	{Name: "note", Pattern: `^\s*(?:\^~*\s*$|Note: |In file included from )`, Ignore: true},
	{Name: "gcc", Pattern: `^(?P<file>[^:]+):(?P<line>\d+):(?P<col>\d+): (?:fatal )?(?:error|warning): (?P<message>.*)$`},
	{Name: "go", Pattern: `^(?P<file>[^:]+):(?P<line>\d+):(?:(?P<col>\d+):)?\s*(?P<message>.*)$`},
}
