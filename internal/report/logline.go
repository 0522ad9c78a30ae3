package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	logx "errwatch/pkg/logx"
)

// FromLogLine builds a Record from a raw zerolog JSON line, best-effort.
// A line that doesn't decode still produces a usable record with the raw
// text as message: a malformed log line must not lose the report.
//
// Recognized fields: message/msg, err/error, stack, time.
func FromLogLine(level logx.Level, line []byte) Record {
	rec := Record{Level: level.String(), Time: time.Now()}

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(line), &m); err != nil {
		rec.Message = strings.TrimSpace(string(line))
		return rec
	}

	msg, _ := m["message"].(string)
	if msg == "" {
		msg, _ = m["msg"].(string)
	}
	rec.Message = msg

	if errStr, ok := m["err"].(string); ok && errStr != "" {
		rec.Err = logLineError(errStr)
		if rec.Message == "" {
			rec.Message = errStr
		} else {
			rec.Message += ": " + errStr
		}
	} else if errStr, ok := m["error"].(string); ok && errStr != "" {
		rec.Err = logLineError(errStr)
	}

	if stack, ok := m["stack"].(string); ok {
		rec.Stack = stack
	}

	if ts, ok := m["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Time = t
		}
	}

	if rec.Message == "" {
		rec.Message = strings.TrimSpace(string(line))
	}
	return rec
}

// logLineError carries an error string recovered from a serialized log
// line, where the original error value is gone.
type logLineError string

func (e logLineError) Error() string { return string(e) }
