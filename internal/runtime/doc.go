/*
Package runtime provides the event pipeline infrastructure for hubflow.

# Architecture Overview

A Service owns one broker client and the endpoints addressed through it.
Outgoing application messages are wrapped in an Envelope, encoded as
structured CloudEvents and written to a partitioned stream. Listeners read
every partition assigned to their consumer group, decode each message back
into an Envelope and hand it to a Receiver. A partition's checkpoint moves
only after the receiver succeeded, so delivery is at least once.

# Package Structure

## Core Service (service.go)

The Service wires together:
  - The broker client built by the transport factory
  - The endpoint registry (senders, listeners, stream administration)
  - The CloudEvents codec and partition key resolver
  - Prometheus pipeline metrics and the HTTP servers that expose them

## Publishing (publisher.go, registration.go)

Publish marshals a Go value as JSON, names it by its registered message type
and derives its partition key from `partitionkey` tagged fields.
RegisterJSONReceiver decodes incoming payloads into a typed handler.

## Status (status.go, resources.go)

/api/status reports endpoints, listener states, pipeline counters and coarse
process resource usage.

# Sub-packages

  - cloudevents/: CloudEvents attribute names, shape detection, time format
  - codec/: Envelope <-> wire message translation with baseline fallback
  - config/: Service configuration with validation
  - endpoint/: Endpoint addresses, registry and administration
  - envelope/: The broker-agnostic Envelope
  - errors/: Sentinel errors and error types
  - handlers/: Typed JSON receivers
  - ids/: Envelope and instance identifiers
  - inbox/: Durable-mode inbox stores (memory and pebble)
  - jsoncodec/: JSON marshaling utilities
  - listener/: Partitioned, checkpoint-on-success receive loop
  - logging/: Logger interface and adapters
  - metadata/: Header utilities
  - metrics/: Pipeline counters
  - partitionkey/: Routing key resolution from struct tags
  - sender/: Envelope sender
  - tracing/: W3C trace context helpers
  - transport/: Broker client factory

# Usage Example

	cfg := hubflow.DefaultConfig()
	cfg.Transport = "kafka"
	cfg.KafkaBrokers = []string{"localhost:9092"}

	svc := hubflow.NewService(&cfg, logger, ctx, hubflow.ServiceDependencies{})

	hubflow.RegisterJSONReceiver(svc, hubflow.JSONReceiverRegistration[*OrderPlaced]{
		Address: "eventhub://orders?group=billing",
		Handler: processOrder,
	})

	svc.Start(ctx)
*/
package runtime
