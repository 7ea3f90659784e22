// Package cloudevents holds the CloudEvents wire contract used by the envelope
// codec: property names, wire shape classification and conversions between
// sdk-go events and broker properties.
package cloudevents

import (
	"strings"

	"github.com/cloudevents/sdk-go/v2/event"
)

// Property names mirrored onto every encoded wire message. The set is part of
// the wire contract and must not change.
const (
	Prefix = "ce_"

	PropSpecVersion     = "ce_specversion"
	PropType            = "ce_type"
	PropSource          = "ce_source"
	PropID              = "ce_id"
	PropTime            = "ce_time"
	PropDataContentType = "ce_datacontenttype"
	PropTraceParent     = "ce_traceparent"

	// PlainTraceParent is the W3C header for consumers unaware of CloudEvents.
	PlainTraceParent = "traceparent"
	// PartitionKey is the reserved routing key property.
	PartitionKey = "partitionKey"
)

// Content types.
const (
	StructuredContentType  = event.ApplicationCloudEventsJSON
	DefaultDataContentType = event.ApplicationJSON
	SpecVersion            = event.CloudEventsVersionV1
)

// IsAttribute reports whether a property name belongs to the ce_ namespace.
func IsAttribute(name string) bool {
	return strings.HasPrefix(name, Prefix)
}
