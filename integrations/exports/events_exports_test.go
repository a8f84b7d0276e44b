package exports

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
)

func sampleRow(seq uint64) Row {
	return Row{
		ID:        fmt.Sprintf("evt-%d", seq),
		Sequence:  seq,
		Type:      "stake.claimed",
		Account:   "0x00000000000000000000000000000000000000Aa",
		Timestamp: 1700,
		Attributes: map[string]string{
			"minted":  "10",
			"account": "0x00000000000000000000000000000000000000Aa",
		},
	}
}

func TestEventsCSV(t *testing.T) {
	data, checksum, err := EventsCSV([]Row{sampleRow(1), sampleRow(2)})
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	sum := sha256.Sum256(data)
	if checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum does not match payload")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %d lines", len(lines))
	}
	if lines[0] != "id,sequence,type,account,timestamp,time,attributes" {
		t.Fatalf("missing header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "account=0x00000000000000000000000000000000000000Aa;minted=10") {
		t.Fatalf("attributes not flattened in key order: %s", lines[1])
	}
	if !strings.Contains(lines[1], "1970-01-01T00:28:20Z") {
		t.Fatalf("missing formatted time: %s", lines[1])
	}
}

func TestEventsCSVEmptyStillHasHeader(t *testing.T) {
	data, checksum, err := EventsCSV(nil)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if checksum == "" || !strings.HasPrefix(string(data), "id,sequence") {
		t.Fatalf("expected header-only export, got %q", data)
	}
}

func TestEventsJSONL(t *testing.T) {
	data, checksum, err := EventsJSONL([]Row{sampleRow(7)})
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.Contains(output, "\"sequence\":7") {
		t.Fatalf("unexpected payload: %s", output)
	}
	if !strings.Contains(output, "\"type\":\"stake.claimed\"") {
		t.Fatalf("missing type: %s", output)
	}
}
