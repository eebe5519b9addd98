package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/basket/internal/metrics"
)

// initKafkaProducer инициализирует Kafka producer, если список brokers не пуст.
// Возвращает nil, nil для пустого списка.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	brokers = normalizeBrokers(brokers)
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, kafka.WithProducerLogger(logger.WithField("layer", "kafka-producer")))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// initSessionConsumer подписывает merge на события входа пользователя.
// Ошибки подключения не останавливают сервис: merge остаётся доступен через HTTP.
func initSessionConsumer(cfg Config, merger domain.BasketMerger, dlq *kafka.Producer, m *metrics.ConsumerMetrics, logger *log.Entry) *kafka.Consumer {
	brokers := normalizeBrokers(cfg.KafkaBrokers)
	if !cfg.KafkaConsumeSessions || len(brokers) == 0 {
		return nil
	}

	handler := kafka.NewSessionMergeHandler(merger, m, logger.WithField("layer", "session-events"))
	opts := []kafka.ConsumerOption{kafka.WithConsumerLogger(logger.WithField("layer", "kafka-consumer"))}
	if dlq != nil {
		opts = append(opts, kafka.WithDeadLetter(dlq, cfg.KafkaDLQTopic))
	}
	consumer, err := kafka.NewConsumer(brokers, cfg.KafkaConsumerGroup, []string{cfg.KafkaSessionTopic}, handler, opts...)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, login merge is disabled")
		return nil
	}
	return consumer
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func normalizeBrokers(brokers []string) []string {
	out := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
