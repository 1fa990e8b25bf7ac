package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRecordMigrationApplied_IncrementsCounter(t *testing.T) {
	c := NewCollector("yoyo_test_applied", zap.NewNop())

	c.RecordMigrationApplied("postgres")
	c.RecordMigrationApplied("postgres")
	c.RecordMigrationRolledBack("postgres")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.migrationsApplied.WithLabelValues("postgres")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.migrationsRolledBack.WithLabelValues("postgres")))
}

func TestRecordStepDuration_Observes(t *testing.T) {
	c := NewCollector("yoyo_test_step", zap.NewNop())

	c.RecordStepDuration("apply", "ok", 10*time.Millisecond)

	assert.Equal(t, uint64(1), testutil.CollectAndCount(c.stepDuration))
}

func TestRecordLockWait_Observes(t *testing.T) {
	c := NewCollector("yoyo_test_lock", zap.NewNop())

	c.RecordLockWait(5*time.Millisecond, "acquired")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.lockAcquireTotal.WithLabelValues("acquired")))
}

func TestCollectorMethods_NilReceiverSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordMigrationApplied("postgres")
		c.RecordMigrationRolledBack("postgres")
		c.RecordStepDuration("apply", "ok", time.Millisecond)
		c.RecordLockWait(time.Millisecond, "acquired")
	})
}
