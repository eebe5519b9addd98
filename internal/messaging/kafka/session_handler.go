package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/metrics"
)

// NewSessionMergeHandler возвращает обработчик событий входа: на session.authenticated
// корзина сессии переносится в аккаунт. Остальные события пропускаются.
// Некорректное сообщение возвращает ErrInvalidMessage и не повторяется.
func NewSessionMergeHandler(merger domain.BasketMerger, m *metrics.ConsumerMetrics, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "session-events")
	}
	record := func(result string) {
		if m != nil {
			m.Messages.WithLabelValues(result).Inc()
		}
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParseSessionEvent(message)
		if err != nil {
			record("invalid")
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if event.EventType != EventTypeSessionAuthenticated {
			record("skipped")
			return nil
		}

		session := domain.SessionID(event.SessionID)
		if err := session.Validate(); err != nil {
			record("invalid")
			return fmt.Errorf("%w: session event without session_id", ErrInvalidMessage)
		}

		result, err := merger.MergeSessionBasketIntoAccount(ctx, session)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			record("error")
			return fmt.Errorf("merge session %s: %w", session, err)
		}

		fields := log.Fields{"session_id": event.SessionID, "account_id": event.AccountID}
		if !result.Merged {
			record("noop")
			logger.WithFields(fields).Debug("nothing to merge")
			return nil
		}

		record("merged")
		logger.WithFields(fields).WithFields(log.Fields{
			"session_basket": result.SessionBasket.ID,
			"account_basket": result.AccountBasket.ID,
			"lines":          result.Lines,
		}).Info("session basket merged on login")
		return nil
	}
}
