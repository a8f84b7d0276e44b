package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Row is one indexed ledger event in export form.
type Row struct {
	ID         string
	Sequence   uint64
	Type       string
	Account    string
	Timestamp  uint64
	Attributes map[string]string
}

// EventsCSV builds a CSV export for the supplied rows and returns the
// serialised data alongside a SHA-256 checksum of the payload. Attributes are
// flattened into a single key=value column ordered by key.
func EventsCSV(rows []Row) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"id", "sequence", "type", "account", "timestamp", "time", "attributes"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, row := range rows {
		record := []string{
			row.ID,
			fmt.Sprintf("%d", row.Sequence),
			row.Type,
			row.Account,
			fmt.Sprintf("%d", row.Timestamp),
			time.Unix(int64(row.Timestamp), 0).UTC().Format(time.RFC3339),
			flattenAttributes(row.Attributes),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func flattenAttributes(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+attrs[key])
	}
	return strings.Join(parts, ";")
}
