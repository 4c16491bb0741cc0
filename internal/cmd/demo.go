package cmd

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"umux/internal/config"
	"umux/internal/session"
	"umux/internal/termengine"
	"umux/internal/wait"
)

func newRunCmd() *cobra.Command {
	var command string
	var pattern string
	var timeout time.Duration

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Spawn a session, send it input, wait for a pattern, and print the screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(command, pattern, timeout)
		},
	}

	runCmd.Flags().StringVar(&command, "command", "sh", "command to run in the session")
	runCmd.Flags().StringVar(&pattern, "pattern", "\\$\\s*$", "regexp to wait for in the session's output")
	runCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the pattern before giving up")

	return runCmd
}

// runDemo exercises the full spawn → send → wait → capture → dispose path.
func runDemo(command, pattern string, timeout time.Duration) error {
	cfg := config.Default()

	cols, rows := defaultGridSize()

	sess, err := session.New(session.Options{
		Command: command,
		Cols:    cols,
		Rows:    rows,
		Name:    "umux-demo",
		Config:  cfg,
	})
	if err != nil {
		return fmt.Errorf("spawn session: %w", err)
	}
	defer sess.Dispose()

	fmt.Printf("spawned session %s (%dx%d)\n", sess.ID, cols, rows)

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile pattern: %w", err)
	}

	outcome, err := wait.Resolve(sess, wait.Request{Pattern: re, Timeout: timeout})
	if err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	fmt.Printf("wait resolved: reason=%s waited=%dms\n", outcome.Reason, outcome.WaitedMs)

	if err := sess.Send("echo hello from umux-demo\n"); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	outcome, err = wait.Resolve(sess, wait.Request{Pattern: regexp.MustCompile("hello from umux-demo"), Timeout: timeout})
	if err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	fmt.Printf("wait resolved: reason=%s waited=%dms\n", outcome.Reason, outcome.WaitedMs)

	capture, err := sess.Capture(termengine.CaptureOptions{Format: termengine.FormatText})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	fmt.Println("--- screen capture ---")
	fmt.Println(capture.Content)

	return nil
}

// defaultGridSize reads the controlling terminal's size when stdout is a
// real TTY, falling back to the spec default grid otherwise.
func defaultGridSize() (cols, rows int) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return session.DefaultCols, session.DefaultRows
	}
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return session.DefaultCols, session.DefaultRows
	}
	return cols, rows
}
