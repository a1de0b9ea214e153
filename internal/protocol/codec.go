package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedRecord is returned when a record is not a JSON object or a
	// field has the wrong JSON type.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrUnknownType is returned for a type tag the relay does not accept.
	ErrUnknownType = errors.New("unknown record type")
	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing required field")
)

var requiredFields = map[Kind][]string{
	KindMessage:        {"recipient", "content"},
	KindCreateGroup:    {"group_name", "members"},
	KindFileChunk:      {"recipient", "file_name", "chunk_number", "total_chunks", "content"},
	KindProfileImage:   {"image"},
	KindStartVideoCall: {"recipient"},
}

// Decode parses one inbound record. Only the client to server kinds are
// accepted; anything else yields ErrUnknownType.
func Decode(data []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	}
	var kind Kind
	if err := json.Unmarshal(rawType, &kind); err != nil {
		return nil, fmt.Errorf("%w: type: %v", ErrMalformedRecord, err)
	}

	required, ok := requiredFields[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	for _, name := range required {
		if v, present := fields[name]; !present || string(v) == "null" {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingField, kind, name)
		}
	}

	switch kind {
	case KindMessage:
		return unmarshalAs[DirectMessage](data)
	case KindCreateGroup:
		return unmarshalAs[CreateGroup](data)
	case KindFileChunk:
		return unmarshalAs[FileChunk](data)
	case KindProfileImage:
		return unmarshalAs[ProfileImage](data)
	default:
		return unmarshalAs[StartVideoCall](data)
	}
}

func unmarshalAs[T Record](data []byte) (Record, error) {
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return rec, nil
}

// Encode returns the JSON form of rec without a trailing delimiter.
func Encode(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}
	return data, nil
}
