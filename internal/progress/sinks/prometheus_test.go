package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readingprogress/internal/progress"
	"github.com/JakeFAU/readingprogress/internal/viewport"
)

// TestPrometheusSinkRecordsMetrics ensures gauges and counters follow a reading session.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	session := uuid.New()
	batch := []progress.Update{
		update(session, 1, "0", true, 0, progress.TransitionEnter),
		update(session, 2, "0", true, 60, progress.TransitionNone),
		update(session, 3, "", false, 100, progress.TransitionLeave),
		update(session, 4, "", false, 100, progress.TransitionNone),
		update(session, 5, "1", true, 10, progress.TransitionEnter),
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 5.0, testutil.ToFloat64(sink.updates))
	require.Equal(t, 10.0, testutil.ToFloat64(sink.percentage))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.active))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.transitions.WithLabelValues("enter")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.transitions.WithLabelValues("leave")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.completions))
	require.Equal(t, 1, testutil.CollectAndCount(sink.leaveAt, "reading_progress_leave_percentage"))
}

// TestPrometheusSinkCountsCompletionPerSession treats each session independently.
func TestPrometheusSinkCountsCompletionPerSession(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	a, b := uuid.New(), uuid.New()
	require.NoError(t, sink.Consume(context.Background(), []progress.Update{
		update(a, 1, "", false, 100, progress.TransitionNone),
		update(b, 1, "0", true, 50, progress.TransitionEnter),
		update(b, 2, "", false, 100, progress.TransitionLeave),
		update(a, 2, "", false, 100, progress.TransitionNone),
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.completions))
}

// TestPrometheusSinkRejectsDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func update(
	session uuid.UUID,
	seq uint64,
	id viewport.ContainerID,
	active bool,
	pct float64,
	transition progress.Transition,
) progress.Update {
	return progress.Update{
		Session:    session,
		Seq:        seq,
		TS:         time.Unix(int64(seq), 0).UTC(),
		State:      viewport.ViewportState{ActiveContainerID: id, Active: active, ScrollPercentage: pct},
		Transition: transition,
	}
}
