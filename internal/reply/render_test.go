package reply_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/reply"
)

func TestAcknowledgment(t *testing.T) {
	tests := []struct {
		name     string
		counts   reply.Counts
		contains []string
	}{
		{
			name:     "fully applied",
			counts:   reply.Counts{Applied: 2, FullyDone: true, TripName: "Rome", Summary: "Flight and dinner"},
			contains: []string{"Added 2 items to Rome", "Flight and dinner"},
		},
		{
			name:     "partially applied",
			counts:   reply.Counts{Applied: 1, Review: 1, TripName: "Rome"},
			contains: []string{"Added 1 item.", "1 item waiting for a trip owner"},
		},
		{
			name:     "nothing applied",
			counts:   reply.Counts{Review: 3, TripName: "Rome"},
			contains: []string{"3 items waiting"},
		},
		{
			name:     "nothing found",
			counts:   reply.Counts{TripName: "Rome", FullyDone: true},
			contains: []string{"didn't find any trip details"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := reply.Acknowledgment(tc.counts)
			for _, want := range tc.contains {
				assert.Contains(t, got.Text, want)
			}
		})
	}
}

func TestDisambiguation_ListsCodes(t *testing.T) {
	got := reply.Disambiguation([]domain.Trip{
		{Name: "Rome", TripCode: "rome"},
		{Name: "Nice", TripCode: "nice"},
	})
	assert.Contains(t, got.Text, "- Rome (code: rome)")
	assert.Contains(t, got.Text, "- Nice (code: nice)")
	assert.Contains(t, got.Text, "switch to <code>")
	assert.Contains(t, got.HTML, "switch to &lt;code&gt;", "html is escaped")
}

func TestSwitched(t *testing.T) {
	got := reply.Switched(domain.Trip{Name: "Rome", TripCode: "rome"})
	assert.Contains(t, got.Text, "now go to Rome")
}
