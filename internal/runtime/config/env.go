package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays HUBFLOW_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("HUBFLOW_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HUBFLOW_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("HUBFLOW_KAFKA_CLIENT_ID"); v != "" {
		cfg.KafkaClientID = v
	}
	if v := os.Getenv("HUBFLOW_CONSUMER_GROUP"); v != "" {
		cfg.KafkaConsumerGroup = v
	}
	if v := os.Getenv("HUBFLOW_MEMORY_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MemoryPartitions = n
		}
	}
	if v := os.Getenv("HUBFLOW_CHECKPOINT_DIR"); v != "" {
		cfg.CheckpointDir = v
	}
	if v := os.Getenv("HUBFLOW_INBOX_DIR"); v != "" {
		cfg.InboxDir = v
	}
	if v := os.Getenv("HUBFLOW_SERVICE_SOURCE"); v != "" {
		cfg.ServiceSource = v
	}
	if v := os.Getenv("HUBFLOW_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("HUBFLOW_AUTO_PROVISION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoProvision = b
		}
	}
	if v := os.Getenv("HUBFLOW_PROCESSING_MODE"); v != "" {
		cfg.DefaultProcessingMode = v
	}
	if v := os.Getenv("HUBFLOW_PROVISION_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProvisionPartitions = n
		}
	}
	if v := os.Getenv("HUBFLOW_PROVISION_REPLICATION_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProvisionReplicationFactor = n
		}
	}
	if v := os.Getenv("HUBFLOW_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MetricsEnabled = b
		}
	}
	if v := os.Getenv("HUBFLOW_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
