package osb

import "strconv"

// The broker contract treats "operation" as an opaque string the platform
// round-trips verbatim on last_operation polls; internally it is just the
// operations table's primary key.
func formatOperationID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseOperationID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
