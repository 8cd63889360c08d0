package feed

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/custody-engine/custody"
	"github.com/warp/custody-engine/schedule"
)

func periods() []custody.Period {
	return []custody.Period{
		{
			Start: time.Date(2025, time.May, 16, 14, 15, 0, 0, time.UTC),
			End:   time.Date(2025, time.May, 18, 17, 0, 0, 0, time.UTC),
			Kind:  custody.KindClassic,
			Label: "Garde - Week-ends alternés",
		},
		{
			Start: time.Date(2025, time.July, 4, 14, 15, 0, 0, time.UTC),
			End:   time.Date(2025, time.August, 1, 17, 0, 0, 0, time.UTC),
			Kind:  custody.KindVacation,
			Label: "Vacances d'Été - juillet",
		},
	}
}

func TestEncode(t *testing.T) {
	// GIVEN: A child with two periods
	child := schedule.Child{
		ID:        "child-1",
		Name:      "Léa",
		Location:  "École Jules Ferry",
		UpdatedAt: time.Date(2025, time.May, 1, 8, 0, 0, 0, time.UTC),
	}

	// WHEN: Encoding
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, child, periods()))

	// THEN: The output decodes into two events with label, kind and location
	cal, err := ical.NewDecoder(&buf).Decode()
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)

	summary, err := events[0].Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Garde - Week-ends alternés", summary)

	kind, err := events[1].Props.Text(ical.PropCategories)
	require.NoError(t, err)
	assert.Equal(t, "vacation", kind)

	start, err := events[1].DateTimeStart(time.UTC)
	require.NoError(t, err)
	assert.True(t, start.Equal(periods()[1].Start))

	location, err := events[0].Props.Text(ical.PropLocation)
	require.NoError(t, err)
	assert.Equal(t, "École Jules Ferry", location)

	uid, err := events[0].Props.Text(ical.PropUID)
	require.NoError(t, err)
	assert.Equal(t, EventUID("child-1", periods()[0]), uid)
}

func TestEventUID_Stable(t *testing.T) {
	p := periods()[0]

	assert.Equal(t, EventUID("child-1", p), EventUID("child-1", p))
	assert.NotEqual(t, EventUID("child-1", p), EventUID("child-2", p))

	// The label does not take part: renaming a rhythm updates events in place
	renamed := p
	renamed.Label = "Autre"
	assert.Equal(t, EventUID("child-1", p), EventUID("child-1", renamed))

	moved := p
	moved.Start = moved.Start.Add(time.Hour)
	assert.NotEqual(t, EventUID("child-1", p), EventUID("child-1", moved))
}

func TestEncode_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, schedule.Child{ID: "c", Name: "x"}, nil))
	assert.Contains(t, buf.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, buf.String(), ProductID)
}
