/**
 * CONTEXT:   Full and lite daemonization: re-exec detach, chroot/umask/workdir, PID file, signal install
 * INPUT:     A daemonize Config naming work dir, chroot target, umask, pid file path, and files to preserve
 * OUTPUT:    A process running detached (full) or in the foreground (lite) with its PID file written
 * BUSINESS:  Turning a foreground process into a service is the first thing every deployment needs right
 * CHANGE:    Initial implementation, re-exec based since Go cannot fork() once the runtime is live
 * RISK:      High - Mistakes here run before logging is fully set up and are hard to diagnose in the field
 */

package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/daemonkit/daemonkit/internal/pidfile"
)

// detachedEnvVar marks a re-exec'd child as already detached, so it skips
// the spawn/setsid step and proceeds straight into workdir/chroot/umask/PID.
// Go cannot safely call a bare fork() once goroutines are running, so the
// detach is a re-exec of the same binary rather than a double fork.
const detachedEnvVar = "DAEMONKIT_DETACHED"

// Config describes how to daemonize, mirroring the daemon's CLI flags.
type Config struct {
	WorkDir       string
	ChrootDir     string
	Umask         int
	PIDFile       string
	FilesPreserve []*os.File
}

// DefaultWorkDir and DefaultUmask apply when Config leaves them unset.
const (
	DefaultWorkDir = "/"
	DefaultUmask   = 0o002
)

func (c Config) workDir() string {
	if c.WorkDir == "" {
		return DefaultWorkDir
	}
	return c.WorkDir
}

// IsDetachedChild reports whether the current process is the re-exec'd
// detached child of a Full() call, i.e. whether Full() should skip
// re-spawning and proceed straight to in-process setup.
func IsDetachedChild() bool {
	return os.Getenv(detachedEnvVar) == "1"
}

// Full performs the double-fork-equivalent detach sequence: the parent
// re-execs a detached, session-leading copy of itself and exits; the
// detached child performs workdir/chroot/umask, closes inherited
// descriptors other than FilesPreserve, redirects stdio to the null device,
// writes the PID file, and returns control to the caller. install is called
// once signal handling should be wired up, after the PID file write; the
// caller supplies it (internal/signalbridge).
func Full(cfg Config, install func() error) error {
	if IsDetachedChild() {
		return detachedSetup(cfg, install)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemonize: resolve executable: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemonize: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), detachedEnvVar+"=1")
	cmd.Dir = cfg.workDir()
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonize: spawn detached child: %w", err)
	}

	// The parent's job ends here: the child is the new session leader and
	// writes its own PID file once it reaches detachedSetup.
	os.Exit(0)
	return nil // unreachable
}

// detachedSetup runs the in-process half of Full in the already-detached child.
func detachedSetup(cfg Config, install func() error) error {
	if err := applyWorkDirChrootUmask(cfg); err != nil {
		return err
	}
	if err := closeInheritedDescriptors(cfg.FilesPreserve); err != nil {
		return err
	}
	if err := redirectStdio(); err != nil {
		return err
	}
	if err := writePIDFile(cfg); err != nil {
		return err
	}
	if install != nil {
		if err := install(); err != nil {
			return fmt.Errorf("daemonize: install signal handlers: %w", err)
		}
	}
	return nil
}

// Lite performs the lite daemonize: workdir/chroot/umask and PID file
// write, but no fork, no session change, no stdio redirect. Used for
// --no-daemon / foreground operation.
func Lite(cfg Config, install func() error) error {
	if err := applyWorkDirChrootUmask(cfg); err != nil {
		return err
	}
	if err := writePIDFile(cfg); err != nil {
		return err
	}
	if install != nil {
		if err := install(); err != nil {
			return fmt.Errorf("daemonize: install signal handlers: %w", err)
		}
	}
	return nil
}

func applyWorkDirChrootUmask(cfg Config) error {
	if cfg.ChrootDir != "" {
		if err := unix.Chroot(cfg.ChrootDir); err != nil {
			return fmt.Errorf("daemonize: chroot %s: %w", cfg.ChrootDir, err)
		}
	}

	workDir := cfg.workDir()
	if err := os.Chdir(workDir); err != nil {
		return fmt.Errorf("daemonize: chdir %s: %w", workDir, err)
	}

	umask := cfg.Umask
	if umask == 0 {
		umask = DefaultUmask
	}
	unix.Umask(umask)

	return nil
}

// closeInheritedDescriptors closes every open fd above stderr except those
// named in preserve. Best-effort: a fd that is already closed or invalid is
// not an error.
func closeInheritedDescriptors(preserve []*os.File) error {
	keep := map[int]bool{0: true, 1: true, 2: true}
	for _, f := range preserve {
		if f != nil {
			keep[int(f.Fd())] = true
		}
	}

	// Probing every possible fd is platform-dependent (no portable way to
	// list a process's open fds from the standard library); bound the
	// sweep to a generous descriptor range, which is the conventional
	// approach this step takes in re-exec'd daemonization.
	const maxFD = 4096
	for fd := 3; fd < maxFD; fd++ {
		if keep[fd] {
			continue
		}
		_ = unix.Close(fd)
	}
	return nil
}

func redirectStdio() error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemonize: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	fd := int(devNull.Fd())
	for _, std := range []int{0, 1, 2} {
		if err := unix.Dup2(fd, std); err != nil {
			return fmt.Errorf("daemonize: redirect fd %d: %w", std, err)
		}
	}
	return nil
}

func writePIDFile(cfg Config) error {
	if cfg.PIDFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.PIDFile), 0755); err != nil {
		return fmt.Errorf("daemonize: create pid file directory: %w", err)
	}
	return pidfile.Write(cfg.PIDFile, os.Getpid())
}
