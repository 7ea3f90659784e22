package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill converts Watermill metadata (Kafka headers) into Metadata.
func FromWatermill(md message.Metadata) Metadata {
	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// PropertiesToWatermill stringifies broker properties into Watermill metadata.
func PropertiesToWatermill(props map[string]any) message.Metadata {
	wm := make(message.Metadata, len(props))
	for k, v := range props {
		wm[k] = Stringify(v)
	}
	return wm
}

// WatermillToProperties exposes Watermill metadata as broker properties.
func WatermillToProperties(md message.Metadata) map[string]any {
	props := make(map[string]any, len(md))
	for k, v := range md {
		props[k] = v
	}
	return props
}
