package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsChecklistComplete(t *testing.T) {
	testCases := []struct {
		name  string
		items []ChecklistItem
		want  bool
	}{
		{"no items", nil, false},
		{"one open", []ChecklistItem{{Done: false}}, false},
		{"mixed", []ChecklistItem{{Done: true}, {Done: false}}, false},
		{"one done", []ChecklistItem{{Done: true}}, true},
		{"all done", []ChecklistItem{{Done: true}, {Done: true}, {Done: true}}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsChecklistComplete(tc.items))
		})
	}
}
