// Package hubflow connects services to partitioned event streams. It sends
// application messages as CloudEvents and delivers incoming ones to receivers
// with at-least-once, checkpoint-on-success semantics. The broker (Kafka or
// the in-memory hub) is chosen in Config.
//
// A Service owns one broker client. Endpoints are addressed as
// "eventhub://<stream>?group=<consumer group>&mode=<processing mode>" or by a
// bare stream name. Publish marshals a Go value as JSON and routes it by the
// fields tagged `partitionkey`:
//
//	type OrderPlaced struct {
//		TenantID string `json:"tenant_id" partitionkey:"0"`
//		OrderID  string `json:"order_id" partitionkey:"1"`
//	}
//
//	svc.Publish(ctx, "orders", &OrderPlaced{TenantID: "acme", OrderID: "o-1"})
//
// Listen or RegisterJSONReceiver attach receivers; Start runs them until the
// context is cancelled. A receiver error or panic leaves the partition's
// checkpoint in place so the message is read again after a restart or
// rebalance.
//
// # Stream administration
//
// Check verifies that addressed streams exist. Setup creates them, but only
// when AutoProvision is enabled and Environment names a development
// environment. Teardown, deferral and requeueing are not offered by
// partitioned brokers and report ErrNotSupported or a warning.
//
// # Processing modes
//
// buffered and inline deliver straight to the receiver. durable records each
// envelope in an inbox (memory or pebble) first and skips envelopes that were
// already completed.
package hubflow
