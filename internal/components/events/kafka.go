package events

import (
	"context"
	"encoding/json"
	"fmt"

	"pricewise-backend/internal/components/telemetry"

	"github.com/IBM/sarama"
)

const report_kafka_publish = "kafka.publish"

type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// KafkaPublisher writes events as json keyed by shop name, so every event of
// a shop lands on the same partition in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	tel      telemetry.API
}

func NewKafkaProducer(config KafkaConfig) (sarama.SyncProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	return sarama.NewSyncProducer(config.Brokers, saramaConfig)
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, tel telemetry.API) KafkaPublisher {
	return KafkaPublisher{
		producer: producer,
		topic:    topic,
		tel:      telemetry.NewScopedAPI("events", tel),
	}
}

func (k KafkaPublisher) PublishRunFinished(ctx context.Context, event RunFinished) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.ShopName),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte("run_finished")},
		},
	})
	if err != nil {
		k.tel.ReportBroken(report_kafka_publish, err, event.OperationID)
		return fmt.Errorf("publish run event: %w", err)
	}
	k.tel.ReportDebug("published run event", event.OperationID, partition, offset)
	return nil
}

func (k KafkaPublisher) Close() error {
	return k.producer.Close()
}
