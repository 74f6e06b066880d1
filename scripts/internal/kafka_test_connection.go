package internal

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Shopify/sarama"
	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/pubsub/kafka"
)

// TestKafkaConnection connects to the configured brokers with the settings the
// delivery queue uses and checks the delivery topic exists
func TestKafkaConnection() error {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is empty")
	}

	saramaConfig := kafka.GetSaramaConfig(cfg)
	if user := os.Getenv("KAFKA_USERNAME"); user != "" {
		saramaConfig.Net.TLS.Enable = true
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		saramaConfig.Net.SASL.User = user
		saramaConfig.Net.SASL.Password = os.Getenv("KAFKA_PASSWORD")
	}

	// Add timeouts
	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	// Create client
	client, err := sarama.NewClient(cfg.Kafka.Brokers, saramaConfig)
	if err != nil {
		return fmt.Errorf("error creating client: %v", err)
	}
	defer client.Close()

	// List topics to test connection
	topics, err := client.Topics()
	if err != nil {
		return fmt.Errorf("error listing topics: %v", err)
	}

	fmt.Printf("Successfully connected! Available topics: %v\n", topics)
	for _, t := range topics {
		if t == cfg.Webhook.Topic {
			return nil
		}
	}
	fmt.Printf("Delivery topic %q does not exist yet, it is created on first publish when auto creation is on\n", cfg.Webhook.Topic)
	return nil
}
