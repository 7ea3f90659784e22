package cloudevents

import "strings"

// Shape classifies an inbound wire message before decoding.
type Shape int

const (
	// ShapeOpaque carries no CloudEvents markers; the body is application data.
	ShapeOpaque Shape = iota
	// ShapeStructured declares a CloudEvents content type; the body is one
	// self-describing event document.
	ShapeStructured
	// ShapeStructuredJSON carries ce_ properties with a plain JSON content
	// type. The body is tried as a structured document first and as binary
	// data second.
	ShapeStructuredJSON
	// ShapeBinary carries attributes in ce_ properties and raw data in the body.
	ShapeBinary
)

func (s Shape) String() string {
	switch s {
	case ShapeOpaque:
		return "opaque"
	case ShapeStructured:
		return "structured"
	case ShapeStructuredJSON:
		return "structured-json"
	case ShapeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// IsCloudEvent reports whether the shape carries CloudEvents semantics.
func (s Shape) IsCloudEvent() bool {
	return s != ShapeOpaque
}

// Classify inspects the content type and properties of a wire message.
func Classify(contentType string, props map[string]any) Shape {
	ct := strings.ToLower(contentType)
	_, hasSpecVersion := props[PropSpecVersion]
	switch {
	case strings.Contains(ct, "cloudevents"):
		return ShapeStructured
	case !hasSpecVersion:
		return ShapeOpaque
	case strings.Contains(ct, "json"):
		return ShapeStructuredJSON
	default:
		return ShapeBinary
	}
}
