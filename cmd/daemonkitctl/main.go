/**
 * CONTEXT:   Entry point for daemonkitctl, the action CLI that signals a running daemonkitd
 * INPUT:     A subcommand (signal-check, signal-alrm, signal-int, signal-hup, signal-usr1, signal-usr2, status)
 * OUTPUT:    The named signal delivered to the resolved PID(s), or a rendered status table
 * BUSINESS:  Operators need a narrow, scriptable way to prod a daemon without knowing its PID
 * CHANGE:    Initial implementation
 * RISK:      Medium - Sends real signals to real processes; wrong PID resolution misdirects them
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/daemonkit/daemonkit/internal/config"
	"github.com/daemonkit/daemonkit/internal/pidfile"
	"github.com/daemonkit/daemonkit/internal/runlog"
	"github.com/daemonkit/daemonkit/internal/statefile"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgMagenta, color.Bold)
)

var (
	pidFileFlag   string
	runDirFlag    string
	nameFlag      string
	stateFileFlag string
	runLogDirFlag string
	parallel      bool
	noColor       bool
)

var rootCmd = &cobra.Command{
	Use:   "daemonkitctl",
	Short: "daemonkitctl signals and inspects a running daemonkitd",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			color.NoColor = true
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&pidFileFlag, "pid-file", config.DefaultPIDFile, "PID file of the target daemon")
	pf.StringVar(&runDirFlag, "run-dir", filepath.Dir(config.DefaultPIDFile), "directory to scan for sibling PID files in --parallel mode")
	pf.StringVar(&nameFlag, "name", "daemonkitd", "base name used when enumerating parallel instances")
	pf.BoolVar(&parallel, "parallel", false, "act on every sibling PID file instead of a single instance")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	statusCmd.Flags().StringVar(&stateFileFlag, "state-file", config.DefaultStateFile, "state snapshot of the target daemon")
	statusCmd.Flags().StringVar(&runLogDirFlag, "run-log-dir", config.DefaultRunLogDir, "runlog directory of the target daemon")

	rootCmd.AddCommand(
		signalCommand("signal-check", syscall.Signal(0), "probe liveness without sending a real signal"),
		signalCommand("signal-alrm", syscall.SIGALRM, "wake the idle loop"),
		signalCommand("signal-int", syscall.SIGINT, "stop the event loop"),
		signalCommand("signal-hup", syscall.SIGHUP, "schedule a signal_hup event"),
		signalCommand("signal-usr1", syscall.SIGUSR1, "schedule a signal_usr1 event"),
		signalCommand("signal-usr2", syscall.SIGUSR2, "schedule a signal_usr2 event"),
		statusCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func signalCommand(use string, sig syscall.Signal, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			pids, err := targetPIDs()
			if err != nil {
				return err
			}
			for _, pid := range pids {
				if err := pidfile.Probe(pid, sig); err != nil {
					errorColor.Fprintf(os.Stderr, "pid %d: %v\n", pid, err)
					continue
				}
				successColor.Printf("pid %d: %s delivered\n", pid, use)
			}
			return nil
		},
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show the resolved daemon state from its PID and state files",
	RunE:  runStatus,
}

// targetPIDs resolves either the single configured PID file or, in
// --parallel mode, every sibling PID file under --run-dir matching --name.
func targetPIDs() ([]int, error) {
	if !parallel {
		pid, err := pidfile.Read(pidFileFlag)
		if err != nil {
			return nil, fmt.Errorf("read pid file: %w", err)
		}
		return []int{pid}, nil
	}

	paths, err := pidfile.Enumerate(runDirFlag, nameFlag, false)
	if err != nil {
		return nil, fmt.Errorf("enumerate pid files: %w", err)
	}
	pids := make([]int, 0, len(paths))
	for _, p := range paths {
		pid, err := pidfile.Read(p)
		if err != nil {
			errorColor.Fprintf(os.Stderr, "%s: %v\n", p, err)
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	pid, err := pidfile.Read(pidFileFlag)
	if err != nil {
		return fmt.Errorf("read pid file: %w", err)
	}

	alive := pidfile.Probe(pid, syscall.Signal(0)) == nil

	var stateRows [][]string
	if tree, err := statefile.Load(stateFileFlag); err == nil {
		if uptime, ok := tree["uptime"].(string); ok {
			stateRows = append(stateRows, []string{"uptime", uptime})
		}
		if code, ok := tree["last_exit_code"]; ok {
			stateRows = append(stateRows, []string{"last_exit_code", fmt.Sprintf("%v", code)})
		}
	}

	if rec, err := runlog.Latest(runLogDirFlag); err == nil {
		stateRows = append(stateRows, []string{"last_run_exit_code", fmt.Sprintf("%d", rec.ExitCode)})
		stateRows = append(stateRows, []string{"last_run_child_pid", fmt.Sprintf("%d", rec.ChildPID)})
	}

	headerColor.Println("daemonkitd status")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"pid", fmt.Sprintf("%d", pid)})
	table.Append([]string{"alive", fmt.Sprintf("%v", alive)})
	for _, row := range stateRows {
		table.Append(row)
	}
	table.Render()

	return nil
}
