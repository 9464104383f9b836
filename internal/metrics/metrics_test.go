package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordLikeToggle(t *testing.T) {
	before := testutil.ToFloat64(likeToggles.WithLabelValues("liked"))
	RecordLikeToggle("liked")
	RecordLikeToggle("liked")
	assert.Equal(t, before+2, testutil.ToFloat64(likeToggles.WithLabelValues("liked")))
}

func TestRecordLikeConflict(t *testing.T) {
	retried := testutil.ToFloat64(likeConflicts.WithLabelValues("retried"))
	exhausted := testutil.ToFloat64(likeConflicts.WithLabelValues("exhausted"))

	RecordLikeConflict(false)
	RecordLikeConflict(true)

	assert.Equal(t, retried+1, testutil.ToFloat64(likeConflicts.WithLabelValues("retried")))
	assert.Equal(t, exhausted+1, testutil.ToFloat64(likeConflicts.WithLabelValues("exhausted")))
}

func TestRecordAuthAttempt(t *testing.T) {
	before := testutil.ToFloat64(authAttempts.WithLabelValues("success"))
	RecordAuthAttempt("success")
	assert.Equal(t, before+1, testutil.ToFloat64(authAttempts.WithLabelValues("success")))
}
