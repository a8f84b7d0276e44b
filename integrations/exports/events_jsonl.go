package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// EventsJSONL builds a JSON Lines export for the supplied rows and returns the
// serialised payload alongside a checksum.
func EventsJSONL(rows []Row) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, row := range rows {
		attrs := row.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		payload := map[string]interface{}{
			"id":         row.ID,
			"sequence":   row.Sequence,
			"type":       row.Type,
			"account":    row.Account,
			"timestamp":  row.Timestamp,
			"attributes": attrs,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
