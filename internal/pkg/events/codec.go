package events

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrMalformedEvent = errors.New("malformed event")

// Marshal encodes e as a protobuf Struct.
func Marshal(e Event) ([]byte, error) {
	fields := map[string]any{
		"type":  e.Type,
		"topic": e.Topic,
		"at":    float64(e.At.UnixMilli()),
	}
	if e.Data != nil {
		fields["data"] = e.Data
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build event struct: %w", err)
	}
	return proto.Marshal(s)
}

func Unmarshal(raw []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(raw, &s); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	f := s.GetFields()
	e := Event{
		Type:  f["type"].GetStringValue(),
		Topic: f["topic"].GetStringValue(),
		At:    time.UnixMilli(int64(f["at"].GetNumberValue())).UTC(),
	}
	if e.Type == "" || e.Topic == "" {
		return Event{}, fmt.Errorf("%w: missing type or topic", ErrMalformedEvent)
	}
	if data := f["data"].GetStructValue(); data != nil {
		e.Data = data.AsMap()
	}
	return e, nil
}
