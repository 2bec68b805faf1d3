package display

import (
	"encoding/json"
	"os"
)

// MarshalJSON renders v for terminal consumption: indented when stdout is
// a terminal or unknown, compact when piped so downstream tools get one
// object per line.
func MarshalJSON(v interface{}) ([]byte, error) {
	if stdoutIsPipe() {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}

func stdoutIsPipe() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}
