package stream

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/vulnzap/vulnzap-client/internal/common"
)

const dataPrefix = "data:"

// parseLine extracts the JSON object of a complete "data:" line. ok is false
// for lines that carry no frame: comments, other fields and keepalives.
func parseLine(line string) (frame map[string]any, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, false, nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" {
		return nil, false, nil
	}

	// Numbers stay json.Number so relayed payloads keep their exact digits
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&frame); err != nil {
		return nil, true, common.NewParseError(payload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, true, common.NewParseError(payload, common.NewError("trailing data after frame"))
	}
	if frame == nil {
		return nil, true, common.NewParseError(payload, common.NewError("frame is not a JSON object"))
	}
	normalizeJobID(frame)
	return frame, true, nil
}

// normalizeJobID promotes the legacy scanId field to jobId when the frame
// has no jobId of its own. scanId never survives normalization.
func normalizeJobID(frame map[string]any) {
	scanID, hasScanID := frame["scanId"]
	if !hasScanID {
		return
	}
	if _, hasJobID := frame["jobId"]; !hasJobID {
		frame["jobId"] = scanID
	}
	delete(frame, "scanId")
}

func frameString(frame map[string]any, key string) string {
	s, _ := frame[key].(string)
	return s
}
