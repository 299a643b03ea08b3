package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sergeJAVA/contractor-service/pkg/codec"
	dbpkg "github.com/sergeJAVA/contractor-service/pkg/db"
	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/enums"
	"github.com/sergeJAVA/contractor-service/pkg/outbox"
)

func newStoreDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := dbpkg.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxMessage{}, &models.Contractor{}))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func enqueue(t *testing.T, conn *gorm.DB, ids ...string) []uuid.UUID {
	t.Helper()
	writer := outbox.NewService(outbox.NewRepository(conn, time.Minute), codec.NewContractor(), testLogger())
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			msg, err := writer.EnqueueChangeNotification(context.Background(), tx, id, &models.Contractor{ID: id, Name: "Name " + id})
			if err != nil {
				return err
			}
			out = append(out, msg.MessageID)
			return nil
		}))
	}
	return out
}

func storeService(t *testing.T, conn *gorm.DB, pub Publisher, workerID string) *Service {
	t.Helper()
	svc := newTestService(t, outbox.NewRepository(conn, time.Minute), pub)
	svc.workerID = workerID
	return svc
}

func TestRelayDeliversQueuedChange(t *testing.T) {
	conn := newStoreDB(t)
	ids := enqueue(t, conn, "r1")
	pub := &fakePublisher{}
	svc := storeService(t, conn, pub, "worker-1")

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	calls := pub.published()
	require.Len(t, calls, 1)
	assert.Equal(t, ids[0].String(), calls[0].messageID)
	decoded, err := codec.NewContractor().Decode(calls[0].body)
	require.NoError(t, err)
	assert.Equal(t, "r1", decoded.ID)

	var stored models.OutboxMessage
	require.NoError(t, conn.First(&stored, "message_id = ?", ids[0]).Error)
	assert.Equal(t, enums.OutboxStatusSent, stored.Status)
	assert.NotNil(t, stored.SentAt)

	again, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Claimed)
	assert.Len(t, pub.published(), 1)
}

func TestRelayMarksFailedWhileBrokerDown(t *testing.T) {
	conn := newStoreDB(t)
	ids := enqueue(t, conn, "r2")
	pub := &fakePublisher{errs: map[string]error{ids[0].String(): errors.New("not connected")}}
	svc := storeService(t, conn, pub, "worker-1")

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	var stored models.OutboxMessage
	require.NoError(t, conn.First(&stored, "message_id = ?", ids[0]).Error)
	assert.Equal(t, enums.OutboxStatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "not connected")

	again, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Claimed, "failed records wait for replay")
}

func TestRelayRepublishesReplayedRecordWithSameID(t *testing.T) {
	conn := newStoreDB(t)
	ids := enqueue(t, conn, "r3")
	pub := &fakePublisher{errs: map[string]error{ids[0].String(): errors.New("nack")}}
	svc := storeService(t, conn, pub, "worker-1")

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	repo := outbox.NewRepository(conn, time.Minute)
	require.NoError(t, repo.Replay(context.Background(), ids[0]))
	pub.mu.Lock()
	pub.errs = nil
	pub.mu.Unlock()

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	calls := pub.published()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].messageID, calls[1].messageID)
	assert.Equal(t, calls[0].body, calls[1].body)
}

func TestConcurrentRelaysNeverPublishTwice(t *testing.T) {
	conn := newStoreDB(t)
	keys := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		keys = append(keys, fmt.Sprintf("C-%02d", i))
	}
	ids := enqueue(t, conn, keys...)
	pub := &fakePublisher{}
	workers := []*Service{
		storeService(t, conn, pub, "worker-a"),
		storeService(t, conn, pub, "worker-b"),
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			for i := 0; i < 6; i++ {
				_, err := svc.RunCycle(context.Background())
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, call := range pub.published() {
		seen[call.messageID]++
	}
	assert.Len(t, seen, len(ids))
	for id, n := range seen {
		assert.Equalf(t, 1, n, "message %s published %d times", id, n)
	}

	var pending int64
	require.NoError(t, conn.Model(&models.OutboxMessage{}).Where("status = ?", enums.OutboxStatusPending).Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestSlowBatchNeverPublishesRecordTakenOverByAnotherWorker(t *testing.T) {
	conn := newStoreDB(t)
	ids := enqueue(t, conn, "C-1", "C-2", "C-3")
	pub := &fakePublisher{delay: 40 * time.Millisecond}

	newWorker := func(workerID string) *Service {
		svc := newTestService(t, outbox.NewRepository(conn, 60*time.Millisecond), pub)
		svc.workerID = workerID
		svc.publishTimeout = 50 * time.Millisecond
		return svc
	}
	slow := newWorker("worker-a")
	late := newWorker("worker-b")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := slow.RunCycle(context.Background())
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(70 * time.Millisecond)
		_, err := late.RunCycle(context.Background())
		assert.NoError(t, err)
	}()
	wg.Wait()

	seen := make(map[string]int)
	for _, call := range pub.published() {
		seen[call.messageID]++
	}
	for _, id := range ids {
		assert.Equalf(t, 1, seen[id.String()], "message %s published %d times", id, seen[id.String()])
	}

	var sent int64
	require.NoError(t, conn.Model(&models.OutboxMessage{}).Where("status = ?", enums.OutboxStatusSent).Count(&sent).Error)
	assert.EqualValues(t, len(ids), sent)
}
