// Package export turns datasets into CSV, GeoJSON and Parquet and
// moves the bytes to their destination: local files, the console,
// Kafka or cloud storage.
package export

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

// Sink receives topic-keyed messages.
type Sink interface {
	WriteMessage(topic string, msg []byte) error
	Close() error
}

type ConsoleSink struct{}

func (c *ConsoleSink) WriteMessage(topic string, msg []byte) error {
	fmt.Printf("%s: %s\n", topic, msg)
	return nil
}

func (c *ConsoleSink) Close() error {
	return nil
}

// FileSink appends JSON lines to one file per topic under the output
// folder.
type FileSink struct {
	folder string
	files  map[string]*os.File
}

func NewFileSink(folder string) *FileSink {
	return &FileSink{
		folder: folder,
		files:  make(map[string]*os.File),
	}
}

func (f *FileSink) WriteMessage(topic string, msg []byte) error {
	file, ok := f.files[topic]
	if !ok {
		if err := os.MkdirAll(f.folder, os.ModePerm); err != nil {
			return err
		}
		var err error
		file, err = os.OpenFile(filepath.Join(f.folder, topic+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		f.files[topic] = file
	}

	if _, err := file.Write(msg); err != nil {
		return err
	}
	_, err := file.WriteString("\n")
	return err
}

func (f *FileSink) Close() error {
	for _, file := range f.files {
		if err := file.Close(); err != nil {
			return err
		}
	}
	return nil
}

// KafkaSink publishes messages through a sarama sync producer.
type KafkaSink struct {
	producer sarama.SyncProducer
}

func NewKafkaSink(brokerList string) (*KafkaSink, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Retry.Backoff = 100 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true // Must be true for SyncProducer
	saramaConfig.Net.DialTimeout = 30 * time.Second
	saramaConfig.Net.ReadTimeout = 30 * time.Second
	saramaConfig.Net.WriteTimeout = 30 * time.Second

	brokers := strings.Split(brokerList, ",")
	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama producer: %w", err)
	}

	log.Printf("Sarama producer created successfully with brokers %v", brokers)
	return &KafkaSink{producer: producer}, nil
}

func (s *KafkaSink) WriteMessage(topic string, msg []byte) error {
	if s.producer == nil {
		return fmt.Errorf("Sarama producer is not initialized")
	}

	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(msg),
	})
	if err != nil {
		log.Printf("Failed to send message to topic %s: %v", topic, err)
		return err
	}

	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer == nil {
		return nil
	}
	return s.producer.Close()
}

// NewSink picks the reading publication sink from the config: Kafka
// when enabled, a local file sink otherwise.
func NewSink(cfg *models.Config) (Sink, error) {
	if cfg.KafkaEnabled {
		return NewKafkaSink(cfg.KafkaBrokerList)
	}
	if cfg.OutputFolder != "" {
		return NewFileSink(cfg.OutputFolder), nil
	}
	return &ConsoleSink{}, nil
}

// PublishReadings writes every reading to the sink as JSON.
func PublishReadings(sink Sink, topic string, readings []models.SensorReading) error {
	for _, r := range readings {
		msg, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := sink.WriteMessage(topic, msg); err != nil {
			return err
		}
	}
	return nil
}
