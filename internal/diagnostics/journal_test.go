package diagnostics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwave/syncwave/internal/synccore"
)

func TestNewJournalDisabledBelowOneRecord(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewJournal(0))
	assert.Nil(t, NewJournal(recordSize-1))

	// nil journals are inert
	var j *Journal
	j.Append(time.Now(), synccore.Event{Kind: synccore.EventUnderrun})
	assert.Zero(t, j.Len())
	assert.Zero(t, j.Capacity())
	assert.Nil(t, j.Recent(0))
}

func TestJournalRoundTripsEvents(t *testing.T) {
	t.Parallel()

	j := NewJournal(4 * recordSize)
	require.NotNil(t, j)
	assert.Equal(t, 4, j.Capacity())

	at := time.Unix(1700000000, 123456789)
	want := synccore.Event{
		Kind:      synccore.EventFilterRetune,
		Path:      synccore.PathB,
		Stage:     synccore.StageHighPass,
		Frames:    512,
		Requested: 1024,
		CutoffHz:  -1,
	}
	j.Append(at, want)

	got := j.Recent(0)
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0].Event)
	assert.True(t, at.Equal(got[0].Time))

	// reading does not consume
	assert.Equal(t, 1, j.Len())
}

func TestJournalDiscardsOldestWhenFull(t *testing.T) {
	t.Parallel()

	j := NewJournal(3 * recordSize)
	require.NotNil(t, j)

	base := time.Unix(1700000000, 0)
	for i := range 5 {
		j.Append(base.Add(time.Duration(i)*time.Second), synccore.Event{
			Kind:   synccore.EventUnderrun,
			Frames: uint32(i),
		})
	}

	assert.Equal(t, 3, j.Len())
	got := j.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, []uint32{2, 3, 4}, []uint32{got[0].Event.Frames, got[1].Event.Frames, got[2].Event.Frames})

	newest := j.Recent(2)
	require.Len(t, newest, 2)
	assert.Equal(t, uint32(3), newest[0].Event.Frames)
	assert.Equal(t, uint32(4), newest[1].Event.Frames)
}
