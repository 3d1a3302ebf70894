package reconciler

import (
	"os"
	"path/filepath"
)

// appendToRunLog mirrors one reconciliation.log line into the run's own
// logs/reconciliation.log, per §4.6's "mirrored into the run's
// logs/reconciliation.log when that directory exists" rule.
func appendToRunLog(logsDir, line string) error {
	f, err := os.OpenFile(filepath.Join(logsDir, "reconciliation.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}
