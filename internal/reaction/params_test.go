package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/area/internal/catalog"
)

func TestToRFC3339(t *testing.T) {
	tests := []struct {
		in   string
		zone string
		want string
	}{
		{"2024-10-10T10:00:00-07:00", "", "2024-10-10T10:00:00-07:00"},
		{"Thu Oct 10 2024 10:00:00 GMT+0200 (Central European Summer Time)", "", "2024-10-10T10:00:00+02:00"},
		{"2024-10-10T10:00:00", "", "2024-10-10T10:00:00Z"},
		{"2024-10-10 10:00", "", "2024-10-10T10:00:00Z"},
		{"2024-10-10", "Not/AZone", "2024-10-10T00:00:00Z"},
		{"Thu, 10 Oct 2024 10:00:00 +0000", "", "2024-10-10T10:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToRFC3339(tt.in, tt.zone)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ToRFC3339("next tuesday", "")
	assert.ErrorContains(t, err, "unrecognized date")
}

func TestBindCalendar(t *testing.T) {
	cat := catalog.MustDefault()

	p, err := bindCalendar(cat, []string{
		"Team Meeting", "Discuss project updates",
		"2024-10-10T10:00:00-07:00", "2024-10-10T11:00:00-07:00",
		"America/Los_Angeles", "attendee1@example.com, attendee2@example.com,", "Conference Room A",
	})
	require.NoError(t, err)
	assert.Equal(t, "Team Meeting", p.Summary)
	assert.Equal(t, "Conference Room A", p.Location)
	assert.Equal(t, []string{"attendee1@example.com", "attendee2@example.com"}, p.AttendeeList())

	_, err = bindCalendar(cat, []string{"only one"})
	assert.ErrorIs(t, err, catalog.ErrArity)
}

func TestBindRequiresValues(t *testing.T) {
	cat := catalog.MustDefault()

	_, err := bindPrivateMessage(cat, []string{"spez", ""})
	assert.EqualError(t, err, "subject is required")

	_, err = bindSubmission(cat, []string{"", "golang"})
	assert.EqualError(t, err, "title is required")

	_, err = bindComment(cat, []string{"", "hi"})
	assert.EqualError(t, err, "post_id is required")

	_, err = bindTransfer(cat, []string{"  "})
	assert.EqualError(t, err, "to_address is required")
}
