// Package kafka provides the Kafka transport. Topics are streams, Kafka
// partitions are stream partitions and committed consumer-group offsets are
// the checkpoints. It also serves Azure Event Hubs through its Kafka endpoint.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/hubflow/internal/runtime/errors"
	"github.com/drblury/hubflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

// AdminFactory allows overriding the cluster admin creation for testing.
var AdminFactory = func(brokers []string, cfg *sarama.Config) (sarama.ClusterAdmin, error) {
	return sarama.NewClusterAdmin(brokers, cfg)
}

func init() {
	Register()
}

// Register adds the transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a Kafka client. Subscribers are created per processor.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Client, error) {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	clientID := cfg.GetKafkaClientID()

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             newMarshaler(),
			OverwriteSaramaConfig: publisherSaramaConfig(clientID),
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}

	return &Client{
		brokers:   brokers,
		clientID:  clientID,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

func publisherSaramaConfig(clientID string) *sarama.Config {
	conf := kafka.DefaultSaramaSyncPublisherConfig()
	if clientID != "" {
		conf.ClientID = clientID
	}
	return conf
}

func subscriberSaramaConfig(clientID string) *sarama.Config {
	conf := kafka.DefaultSaramaSubscriberConfig()
	conf.Consumer.Offsets.Initial = sarama.OffsetOldest
	if clientID != "" {
		conf.ClientID = clientID
	}
	return conf
}

func adminSaramaConfig(clientID string) *sarama.Config {
	conf := sarama.NewConfig()
	if clientID != "" {
		conf.ClientID = clientID
	}
	return conf
}

// Client implements transport.Client on top of watermill-kafka and sarama.
type Client struct {
	brokers   []string
	clientID  string
	publisher message.Publisher
	logger    watermill.LoggerAdapter
}

func (c *Client) Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

// Send publishes msg synchronously; it returns once the broker acknowledged
// the write.
func (c *Client) Send(ctx context.Context, stream string, msg *transport.Message) error {
	if stream == "" {
		return errspkg.ErrStreamRequired
	}
	wm, err := toWatermill(msg)
	if err != nil {
		return err
	}
	wm.SetContext(ctx)
	return c.publisher.Publish(stream, wm)
}

func (c *Client) NewProcessor(stream, consumerGroup string) (transport.Processor, error) {
	if stream == "" {
		return nil, errspkg.ErrStreamRequired
	}
	return newProcessor(c, stream, consumerGroup), nil
}

func (c *Client) admin() (sarama.ClusterAdmin, error) {
	admin, err := AdminFactory(c.brokers, adminSaramaConfig(c.clientID))
	if err != nil {
		return nil, fmt.Errorf("kafka admin: %w", err)
	}
	return admin, nil
}

// StreamProperties describes the topic.
func (c *Client) StreamProperties(ctx context.Context, stream string) (transport.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return transport.StreamInfo{}, err
	}
	admin, err := c.admin()
	if err != nil {
		return transport.StreamInfo{}, err
	}
	defer admin.Close()

	topics, err := admin.DescribeTopics([]string{stream})
	if err != nil {
		return transport.StreamInfo{}, fmt.Errorf("describe topic %s: %w", stream, err)
	}
	if len(topics) == 0 {
		return transport.StreamInfo{}, fmt.Errorf("%w: %s", errspkg.ErrStreamNotFound, stream)
	}
	md := topics[0]
	switch {
	case errors.Is(md.Err, sarama.ErrUnknownTopicOrPartition):
		return transport.StreamInfo{}, fmt.Errorf("%w: %s", errspkg.ErrStreamNotFound, stream)
	case !errors.Is(md.Err, sarama.ErrNoError):
		return transport.StreamInfo{}, fmt.Errorf("describe topic %s: %w", stream, md.Err)
	}

	ids := make([]int32, 0, len(md.Partitions))
	for _, p := range md.Partitions {
		ids = append(ids, p.ID)
	}
	slices.Sort(ids)

	info := transport.StreamInfo{Name: md.Name}
	for _, id := range ids {
		info.PartitionIDs = append(info.PartitionIDs, strconv.Itoa(int(id)))
	}
	return info, nil
}

// CreateStream creates the topic. Zero partitions or replication factor use
// the broker defaults. An existing topic is not an error.
func (c *Client) CreateStream(ctx context.Context, spec transport.StreamSpec) error {
	if spec.Name == "" {
		return errspkg.ErrStreamRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	admin, err := c.admin()
	if err != nil {
		return err
	}
	defer admin.Close()

	detail := &sarama.TopicDetail{NumPartitions: -1, ReplicationFactor: -1}
	if spec.Partitions > 0 {
		detail.NumPartitions = int32(spec.Partitions)
	}
	if spec.ReplicationFactor > 0 {
		detail.ReplicationFactor = int16(spec.ReplicationFactor)
	}

	err = admin.CreateTopic(spec.Name, detail, false)
	if errors.Is(err, sarama.ErrTopicAlreadyExists) {
		c.logger.Debug("Topic already exists", watermill.LogFields{"topic": spec.Name})
		return nil
	}
	if err != nil {
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	}
	c.logger.Info("Topic created", watermill.LogFields{
		"topic":              spec.Name,
		"partitions":         detail.NumPartitions,
		"replication_factor": detail.ReplicationFactor,
	})
	return nil
}

func (c *Client) Close() error {
	return c.publisher.Close()
}
