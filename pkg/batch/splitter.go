package batch

import (
	"encoding/json"
	"fmt"
)

// DefaultMaxPayload stays a little under Akamai's 50,000 byte body limit.
const DefaultMaxPayload = 45000

// Limits bounds the size of a single purge request.
type Limits struct {
	// MaxObjects is the maximum number of objects per chunk (0 = no limit).
	MaxObjects int
	// MaxPayload is the encoded body size a chunk must stay under.
	MaxPayload int
}

// DefaultLimits returns limits accepted by the Fast Purge API.
func DefaultLimits() Limits {
	return Limits{
		MaxObjects: 0,
		MaxPayload: DefaultMaxPayload,
	}
}

// Chunk is one purge request's worth of objects.
type Chunk struct {
	Index   int
	Objects []string
	Body    []byte
}

// body is the Fast Purge request payload.
type body struct {
	Objects []any `json:"objects"`
}

// Encode builds the request body for objects. With numeric set every object
// is emitted as a JSON number (CP codes).
func Encode(objects []string, numeric bool) ([]byte, error) {
	out := body{Objects: make([]any, len(objects))}
	for i, obj := range objects {
		if numeric {
			out.Objects[i] = json.Number(obj)
		} else {
			out.Objects[i] = obj
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode objects: %w", err)
	}
	return b, nil
}

// Split partitions objects into chunks that respect limits.
func Split(objects []string, limits Limits, numeric bool) ([]Chunk, error) {
	if len(objects) == 0 {
		return nil, nil
	}
	if limits.MaxPayload <= 0 {
		limits.MaxPayload = DefaultMaxPayload
	}

	var chunks []Chunk
	for _, run := range byCount(objects, limits.MaxObjects) {
		parts, err := byPayload(run, limits.MaxPayload, numeric)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, parts...)
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks, nil
}

func byCount(objects []string, max int) [][]string {
	if max <= 0 || len(objects) <= max {
		return [][]string{objects}
	}

	runs := make([][]string, 0, (len(objects)+max-1)/max)
	for start := 0; start < len(objects); start += max {
		end := start + max
		if end > len(objects) {
			end = len(objects)
		}
		runs = append(runs, objects[start:end])
	}
	return runs
}

func byPayload(objects []string, maxPayload int, numeric bool) ([]Chunk, error) {
	b, err := Encode(objects, numeric)
	if err != nil {
		return nil, err
	}

	// A single object cannot be split further; the API decides whether it fits.
	if len(b) < maxPayload || len(objects) == 1 {
		return []Chunk{{Objects: objects, Body: b}}, nil
	}

	half := len(objects) / 2
	left, err := byPayload(objects[:half], maxPayload, numeric)
	if err != nil {
		return nil, err
	}
	right, err := byPayload(objects[half:], maxPayload, numeric)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}
