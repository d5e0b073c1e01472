package ingestion

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Synthesize writes a small sample log file to path if no file already
// exists there (spec §6: "the Ingestion adapter MAY synthesize a small
// test file"). The lines are the same on every call except for their
// timestamps, which fall in the 40 seconds before the call. Deliberately
// minimal — a few dozen lines covering each recognised event type — not a
// scenario generator;
// original_source/generate_logs.c is the elaborate version of this and is
// correctly out of scope (SPEC_FULL.md §6).
func Synthesize(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("ingestion.Synthesize: stat %q: %w", path, err)
	}

	now := time.Now().UTC().Unix()
	var b strings.Builder
	b.WriteString("# synthesized sample log — streamguard\n")

	users := []int64{101, 102, 103}
	ips := []string{"192.168.1.10", "192.168.1.11", "10.0.0.5"}
	resources := []string{"-", "report_1", "report_2", "dashboard"}

	for i := 0; i < 40; i++ {
		ts := now - int64(40-i)
		user := users[i%len(users)]
		ip := ips[i%len(ips)]

		var eventType, resourceID, status string
		switch i % 4 {
		case 0:
			eventType, resourceID, status = "LOGIN", "-", "SUCCESS"
		case 1:
			eventType, resourceID, status = "LOGIN", "-", "FAILED"
		case 2:
			eventType, resourceID, status = "FILE_ACCESS", resources[i%len(resources)], "SUCCESS"
		case 3:
			eventType, resourceID, status = "API_CALL", "-", "SUCCESS"
			if (i/4)%2 == 1 {
				eventType = "TRANSACTION"
			}
		}

		fmt.Fprintf(&b, "%d, %d, %s, %s, %s, %s\n", ts, user, ip, eventType, resourceID, status)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("ingestion.Synthesize: write %q: %w", path, err)
	}
	return nil
}
