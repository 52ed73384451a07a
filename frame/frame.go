// Package frame extracts JSON payloads from raw channel frames.
//
// Responses on the channel are text frames whose JSON payload may be preceded
// by a status token (for example "123 A {...}"). Extraction locates the first
// opening delimiter of the expected shape and the matching last closing
// delimiter, and validates the substring as JSON.
//
// Extraction is deliberately fail-soft: a frame with no payload, or with a
// payload that does not parse, yields a typed empty result rather than an
// error. A malformed frame must read as "no items" so that a paging loop
// degrades instead of crashing.
package frame

import (
	"bytes"
	"encoding/json"
)

// Payload is the result of extracting a JSON payload from a raw frame.
// When Empty is true, Raw holds the empty value for the expected shape
// ("{}" or "[]") and the frame carried no decodable payload.
type Payload struct {
	Raw   json.RawMessage
	Empty bool
}

var (
	emptyObject = json.RawMessage("{}")
	emptyArray  = json.RawMessage("[]")
)

// ExtractObject returns the first JSON object embedded in raw, spanning the
// first '{' to the last '}'. Frames without a valid object payload produce an
// empty result.
func ExtractObject(raw []byte) Payload {
	return extract(raw, '{', '}', emptyObject)
}

// ExtractArray returns the first JSON array embedded in raw, spanning the
// first '[' to the last ']'. Frames without a valid array payload produce an
// empty result.
func ExtractArray(raw []byte) Payload {
	return extract(raw, '[', ']', emptyArray)
}

func extract(raw []byte, open, close byte, empty json.RawMessage) Payload {
	start := bytes.IndexByte(raw, open)
	end := bytes.LastIndexByte(raw, close)
	if start == -1 || end <= start {
		return Payload{Raw: empty, Empty: true}
	}

	candidate := raw[start : end+1]
	if !json.Valid(candidate) {
		return Payload{Raw: empty, Empty: true}
	}

	out := make(json.RawMessage, len(candidate))
	copy(out, candidate)
	return Payload{Raw: out}
}
