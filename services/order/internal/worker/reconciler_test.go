package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	generalDomain "github.com/sakashimaa/bookshop/pkg/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.committed {
		return pgx.ErrTxClosed
	}
	tx.rolledBack = true
	return nil
}

type fakeDB struct {
	tx *fakeTx
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	db.tx = &fakeTx{}
	return db.tx, nil
}

type fakeLedger struct {
	pending   []int64
	published []int64
	grace     time.Duration
	batchSize int
}

func (l *fakeLedger) FindUnannounced(_ context.Context, _ pgx.Tx, grace time.Duration, batchSize int) ([]int64, error) {
	l.grace = grace
	l.batchSize = batchSize
	return l.pending, nil
}

func (l *fakeLedger) MarkPublishedTx(_ context.Context, _ pgx.Tx, orderID int64) error {
	l.published = append(l.published, orderID)
	return nil
}

type fakeProducer struct {
	keys    []string
	failFor map[int64]bool
}

func (p *fakeProducer) ProduceMessage(_ context.Context, topic string, key string, message any) error {
	event := message.(*generalDomain.OrderAcceptedEvent)
	if topic != generalDomain.TopicOrderAccepted {
		return errors.New("unexpected topic " + topic)
	}
	if p.failFor[event.OrderID] {
		return errors.New("broker unavailable")
	}

	p.keys = append(p.keys, key)
	return nil
}

func TestProcessBatch_AnnouncesPendingOrders(t *testing.T) {
	db := &fakeDB{}
	ledger := &fakeLedger{pending: []int64{3, 7}}
	producer := &fakeProducer{}

	reconciler := NewReconciler(db, ledger, producer, zap.NewNop(), Config{Grace: time.Minute, BatchSize: 10})

	announced, err := reconciler.ProcessBatch(context.Background())

	require.NoError(t, err)
	require.Equal(t, 2, announced)
	require.Equal(t, []string{"3", "7"}, producer.keys)
	require.Equal(t, []int64{3, 7}, ledger.published)
	require.Equal(t, time.Minute, ledger.grace)
	require.Equal(t, 10, ledger.batchSize)
	require.True(t, db.tx.committed)
}

func TestProcessBatch_FailedPublishStaysPending(t *testing.T) {
	db := &fakeDB{}
	ledger := &fakeLedger{pending: []int64{3, 7}}
	producer := &fakeProducer{failFor: map[int64]bool{3: true}}

	reconciler := NewReconciler(db, ledger, producer, zap.NewNop(), Config{})

	announced, err := reconciler.ProcessBatch(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, announced)
	require.Equal(t, []int64{7}, ledger.published)
}

func TestProcessBatch_NothingPending(t *testing.T) {
	db := &fakeDB{}

	reconciler := NewReconciler(db, &fakeLedger{}, &fakeProducer{}, zap.NewNop(), Config{})

	announced, err := reconciler.ProcessBatch(context.Background())

	require.NoError(t, err)
	require.Zero(t, announced)
	require.False(t, db.tx.committed)
	require.True(t, db.tx.rolledBack)
}

type blockingProducer struct {
	entered     chan struct{}
	release     chan struct{}
	enteredOnce sync.Once
}

func (p *blockingProducer) ProduceMessage(context.Context, string, string, any) error {
	p.enteredOnce.Do(func() { close(p.entered) })
	<-p.release
	return nil
}

func TestStart_ReturnsOnlyAfterInFlightBatch(t *testing.T) {
	db := &fakeDB{}
	producer := &blockingProducer{entered: make(chan struct{}), release: make(chan struct{})}
	reconciler := NewReconciler(db, &fakeLedger{pending: []int64{5}}, producer, zap.NewNop(), Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reconciler.Start(ctx)
	}()

	<-producer.entered
	cancel()

	select {
	case <-done:
		t.Fatal("reconciler stopped while a batch was still publishing")
	case <-time.After(50 * time.Millisecond):
	}

	close(producer.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after the batch finished")
	}
	require.True(t, db.tx.committed)
}
