package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marcus/agentrouter/internal/config"
	"github.com/marcus/agentrouter/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View logs",
	Long: `View agentrouter logs.

Displays recent log entries. Use --follow to stream logs in real-time
and --component to show a single component (orchestrator, hooks, daemon...).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tail, _ := cmd.Flags().GetInt("tail")
		follow, _ := cmd.Flags().GetBool("follow")
		export, _ := cmd.Flags().GetString("export")
		component, _ := cmd.Flags().GetString("component")

		logDir := logDirFromConfig()
		filter := componentFilter(component)

		if export != "" {
			return exportLogs(logDir, export)
		}
		if follow {
			return followLogs(logDir, tail, filter)
		}
		return showLogs(os.Stdout, logDir, tail, filter)
	},
}

func init() {
	logsCmd.Flags().IntP("tail", "n", 50, "Number of log lines to show")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().StringP("export", "e", "", "Export logs to file")
	logsCmd.Flags().StringP("component", "c", "", "Only show this component")
	rootCmd.AddCommand(logsCmd)
}

func logDirFromConfig() string {
	if cfg, err := config.Load(); err == nil && cfg.Logging.Path != "" {
		return cfg.Logging.Path
	}
	return logging.DefaultDir()
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Level     string    `json:"level"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Error     string    `json:"error,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
}

// lineFilter reports whether a raw log line should be shown.
type lineFilter func(line string) bool

func componentFilter(component string) lineFilter {
	if component == "" {
		return func(string) bool { return true }
	}
	return func(line string) bool {
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return false
		}
		return strings.EqualFold(e.Component, component)
	}
}

// logFiles lists log files newest first. A missing directory has none.
func logFiles(logDir string) ([]string, error) {
	files, err := logging.Files(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading log dir: %w", err)
	}
	return files, nil
}

func showLogs(w io.Writer, logDir string, n int, keep lineFilter) error {
	files, err := logFiles(logDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "No log files found.")
		return nil
	}

	for _, line := range readLastLines(files, n, keep) {
		fmt.Fprintln(w, formatLogLine(line))
	}
	return nil
}

func followLogs(logDir string, initialLines int, keep lineFilter) error {
	files, err := logFiles(logDir)
	if err != nil {
		return err
	}

	if len(files) > 0 && initialLines > 0 {
		for _, line := range readLastLines(files, initialLines, keep) {
			fmt.Println(formatLogLine(line))
		}
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(logDir); err != nil {
		return fmt.Errorf("watching log dir: %w", err)
	}

	currentFile := currentLogFile(logDir)
	var file *os.File
	var reader *bufio.Reader

	if currentFile != "" {
		file, err = os.Open(currentFile)
		if err == nil {
			_, _ = file.Seek(0, io.SeekEnd)
			reader = bufio.NewReader(file)
		}
	}
	defer func() {
		if file != nil {
			file.Close()
		}
	}()

	fmt.Println("--- Following logs (Ctrl+C to exit) ---")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Date rollover starts a new file
			newFile := currentLogFile(logDir)
			if newFile != "" && newFile != currentFile {
				if file != nil {
					file.Close()
				}
				currentFile = newFile
				file, err = os.Open(currentFile)
				if err != nil {
					file, reader = nil, nil
					continue
				}
				reader = bufio.NewReader(file)
			}

			if event.Op&fsnotify.Write == fsnotify.Write && reader != nil {
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						break
					}
					line = strings.TrimSuffix(line, "\n")
					if keep(line) {
						fmt.Println(formatLogLine(line))
					}
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}

func exportLogs(logDir, outFile string) error {
	files, err := logFiles(logDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no log files found")
	}

	out, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	totalLines := 0

	// Oldest first
	for i := len(files) - 1; i >= 0; i-- {
		for _, line := range readFileLines(files[i]) {
			if _, err := out.WriteString(line + "\n"); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			totalLines++
		}
	}

	fmt.Printf("Exported %d log lines to %s\n", totalLines, outFile)
	return nil
}

func currentLogFile(logDir string) string {
	path := logging.FileFor(logDir, time.Now())
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// readLastLines returns the last n kept lines across files, which are
// ordered newest first.
func readLastLines(files []string, n int, keep lineFilter) []string {
	var lines []string

	for _, file := range files {
		if len(lines) >= n {
			break
		}

		var fileLines []string
		for _, l := range readFileLines(file) {
			if keep(l) {
				fileLines = append(fileLines, l)
			}
		}
		remaining := n - len(lines)

		if len(fileLines) <= remaining {
			lines = append(fileLines, lines...)
		} else {
			lines = append(fileLines[len(fileLines)-remaining:], lines...)
		}
	}

	return lines
}

func readFileLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// formatLogLine renders a JSON log line compactly; other lines pass through.
func formatLogLine(line string) string {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Message == "" {
		return line
	}

	var b strings.Builder
	b.WriteString(entry.Time.Local().Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(formatLogLevel(entry.Level))
	if entry.Component != "" {
		fmt.Fprintf(&b, " [%s]", entry.Component)
	}
	b.WriteString(" ")
	b.WriteString(entry.Message)
	if entry.AgentID != "" {
		fmt.Fprintf(&b, " agent=%s", entry.AgentID)
	}
	if entry.TaskID != "" {
		fmt.Fprintf(&b, " task=%s", entry.TaskID)
	}
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%s", entry.Error)
	}
	return b.String()
}

func formatLogLevel(level string) string {
	switch level {
	case "debug":
		return "DBG"
	case "info":
		return "INF"
	case "warn":
		return "WRN"
	case "error":
		return "ERR"
	case "":
		return "???"
	}
	if len(level) > 3 {
		level = level[:3]
	}
	return strings.ToUpper(level)
}
