package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	generalDomain "github.com/sakashimaa/bookshop/pkg/domain"
	"github.com/sakashimaa/bookshop/pkg/kafka"
	"github.com/sakashimaa/bookshop/services/dispatcher/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newConsumer(t *testing.T, syncProducer *mocks.SyncProducer) *Consumer {
	t.Helper()

	producer := kafka.NewProducerFromSync(syncProducer, zap.NewNop())
	svc := service.NewDispatcherService(producer, zap.NewNop(), prometheus.NewRegistry())

	return NewConsumer(svc, zap.NewNop())
}

func TestProcessMessage_EmitsOrderDispatched(t *testing.T) {
	syncProducer := mocks.NewSyncProducer(t, kafka.NewProducerConfig())
	syncProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"orderId":394}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	defer func() { require.NoError(t, syncProducer.Close()) }()

	err := newConsumer(t, syncProducer).processMessage(context.Background(), &sarama.ConsumerMessage{
		Topic: generalDomain.TopicOrderAccepted,
		Value: []byte(`{"orderId":394}`),
	})

	require.NoError(t, err)
}

func TestProcessMessage_PublishFailureRequestsRedelivery(t *testing.T) {
	syncProducer := mocks.NewSyncProducer(t, kafka.NewProducerConfig())
	syncProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	defer func() { require.NoError(t, syncProducer.Close()) }()

	err := newConsumer(t, syncProducer).processMessage(context.Background(), &sarama.ConsumerMessage{
		Topic: generalDomain.TopicOrderAccepted,
		Value: []byte(`{"orderId":394}`),
	})

	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestProcessMessage_SkipsMalformedPayload(t *testing.T) {
	syncProducer := mocks.NewSyncProducer(t, kafka.NewProducerConfig())
	defer func() { require.NoError(t, syncProducer.Close()) }()

	err := newConsumer(t, syncProducer).processMessage(context.Background(), &sarama.ConsumerMessage{
		Topic: generalDomain.TopicOrderAccepted,
		Value: []byte(`{"order":`),
	})

	require.NoError(t, err)
}
