package cloudevents

import (
	"fmt"

	"github.com/cloudevents/sdk-go/v2/binding/format"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/cloudevents/sdk-go/v2/extensions"

	"github.com/drblury/hubflow/internal/runtime/metadata"
)

// MarshalStructured renders e as a structured-mode JSON document and returns
// the body with its content type.
func MarshalStructured(e *event.Event) ([]byte, string, error) {
	body, err := format.JSON.Marshal(e)
	if err != nil {
		return nil, "", err
	}
	return body, format.JSON.MediaType(), nil
}

// UnmarshalStructured parses a structured-mode document and validates it.
func UnmarshalStructured(body []byte) (event.Event, error) {
	var e event.Event
	if err := format.JSON.Unmarshal(body, &e); err != nil {
		return event.Event{}, err
	}
	if err := e.Validate(); err != nil {
		return event.Event{}, err
	}
	return e, nil
}

// FromBinary rebuilds an event from ce_ properties; body becomes the raw data.
func FromBinary(props map[string]any, body []byte) (event.Event, error) {
	version := propString(props, PropSpecVersion)
	if version != event.CloudEventsVersionV1 && version != event.CloudEventsVersionV03 {
		return event.Event{}, fmt.Errorf("unsupported specversion %q", version)
	}

	e := event.New(version)
	e.SetID(propString(props, PropID))
	e.SetType(propString(props, PropType))
	e.SetSource(propString(props, PropSource))
	if ct := propString(props, PropDataContentType); ct != "" {
		e.SetDataContentType(ct)
	}
	if raw := propString(props, PropTime); raw != "" {
		t, err := ParseTime(raw)
		if err != nil {
			return event.Event{}, err
		}
		e.SetTime(t)
	}
	if tp := propString(props, PropTraceParent); tp != "" {
		extensions.DistributedTracingExtension{TraceParent: tp}.AddTracingAttributes(&e)
	}
	if len(body) > 0 {
		e.DataEncoded = append([]byte(nil), body...)
	}

	if err := e.Validate(); err != nil {
		return event.Event{}, err
	}
	return e, nil
}

// Mirror returns the ce_ properties describing e, including the trace
// parent extension when present.
func Mirror(e event.Event) map[string]string {
	props := map[string]string{
		PropSpecVersion: e.SpecVersion(),
		PropType:        e.Type(),
		PropSource:      e.Source(),
		PropID:          e.ID(),
	}
	if t := FormatTime(e.Time()); t != "" {
		props[PropTime] = t
	}
	if ct := e.DataContentType(); ct != "" {
		props[PropDataContentType] = ct
	}
	if tp := TraceParent(e); tp != "" {
		props[PropTraceParent] = tp
	}
	return props
}

// TraceParent returns the traceparent extension of e, or "".
func TraceParent(e event.Event) string {
	if dt, ok := extensions.GetDistributedTracingExtension(e); ok {
		return dt.TraceParent
	}
	return ""
}

func propString(props map[string]any, name string) string {
	v, ok := props[name]
	if !ok {
		return ""
	}
	return metadata.Stringify(v)
}
