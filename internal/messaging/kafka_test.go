package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestNewKafkaClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	brokers := []string{"localhost:9092"}

	client := NewKafkaClient(brokers, logger)

	if client == nil {
		t.Fatal("NewKafkaClient returned nil")
	}
	if len(client.brokers) != 1 || client.brokers[0] != "localhost:9092" {
		t.Errorf("Expected brokers [localhost:9092], got %v", client.brokers)
	}
	if client.logger == nil {
		t.Error("Logger should not be nil")
	}
	if client.writers == nil {
		t.Error("Writers map should not be nil")
	}
}

func TestKafkaClient_GetProducer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewKafkaClient([]string{"localhost:9092"}, logger)

	topic := "test-topic"

	producer1 := client.GetProducer(topic)
	if producer1 == nil {
		t.Fatal("GetProducer returned nil")
	}
	if producer1.Topic != topic {
		t.Errorf("Expected topic %s, got %s", topic, producer1.Topic)
	}

	producer2 := client.GetProducer(topic)
	if producer1 != producer2 {
		t.Error("Expected same producer instance from cache")
	}

	if len(client.writers) != 1 {
		t.Errorf("Expected 1 writer in map, got %d", len(client.writers))
	}
}

func TestKafkaClient_PublishJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewKafkaClient([]string{"localhost:9092"}, logger)

	msg := SolutionResultMessage{
		Address:     "addrA",
		ChallengeID: "C1",
		Accepted:    true,
		SubmittedAt: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Expected to fail without a live broker; exercised here for its
	// retry/circuit-breaker wiring, not for delivery.
	if err := client.PublishJSON(ctx, TopicSolutions, "addrA", data); err != nil {
		t.Logf("Expected error without Kafka running: %v", err)
		return
	}

	t.Log("Successfully published message to Kafka")
}

func TestTopicConstants(t *testing.T) {
	expectedTopics := map[string]string{
		"TopicSolutions":    "powminer.solutions",
		"TopicRegistration": "powminer.registration",
		"TopicWorkerStats":  "powminer.worker_stats",
		"TopicDevFee":       "powminer.dev_fee",
		"TopicStatus":       "powminer.status",
	}

	actualTopics := map[string]string{
		"TopicSolutions":    TopicSolutions,
		"TopicRegistration": TopicRegistration,
		"TopicWorkerStats":  TopicWorkerStats,
		"TopicDevFee":       TopicDevFee,
		"TopicStatus":       TopicStatus,
	}

	for name, expected := range expectedTopics {
		if actual, exists := actualTopics[name]; !exists {
			t.Errorf("Topic constant %s is missing", name)
		} else if actual != expected {
			t.Errorf("Topic %s: expected %s, got %s", name, expected, actual)
		}
	}
}

func TestKafkaClient_Close(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewKafkaClient([]string{"localhost:9092"}, logger)

	_ = client.GetProducer("topic1")
	_ = client.GetProducer("topic2")

	if len(client.writers) != 2 {
		t.Errorf("Expected 2 writers, got %d", len(client.writers))
	}

	err := client.Close()
	if err != nil {
		t.Logf("Close returned error (expected without Kafka): %v", err)
	}

	if len(client.writers) != 0 {
		t.Errorf("Expected 0 writers after close, got %d", len(client.writers))
	}
}

func BenchmarkKafkaClient_GetProducer(b *testing.B) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewKafkaClient([]string{"localhost:9092"}, logger)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = client.GetProducer("test-topic")
	}
}
