package automation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleView(t *testing.T) {
	r := Rule{
		ID:          "r1",
		BoardID:     "b1",
		Name:        "Tidy",
		Enabled:     true,
		TriggerType: TriggerEvent,
		Trigger:     CardMovedTrigger{ToListID: "done"},
		Actions:     []Action{AddLabel{LabelID: "shipped"}, ArchiveNow{}},
	}

	v, err := r.View()
	require.NoError(t, err)
	assert.Equal(t, "r1", v.ID)
	assert.JSONEq(t, `{"event":"card.moved","to_list_id":"done"}`, string(v.Trigger))
	assert.JSONEq(t, `[{"type":"add_label","label_id":"shipped"},{"type":"archive_now"}]`, string(v.Actions))
	assert.Empty(t, v.TriggerError)
}

func TestRuleView_BrokenTrigger(t *testing.T) {
	r := Rule{
		ID:          "r2",
		TriggerType: TriggerEvent,
		TriggerErr:  errors.New("unknown event"),
	}

	v, err := r.View()
	require.NoError(t, err)
	assert.Nil(t, v.Trigger)
	assert.Equal(t, "unknown event", v.TriggerError)
	assert.JSONEq(t, `[]`, string(v.Actions))
}

func TestRuleView_BrokenActions(t *testing.T) {
	r := Rule{
		ID:          "r3",
		TriggerType: TriggerEvent,
		Trigger:     KindTrigger{Kind: EventCardArchived},
		ActionsErr:  errors.New("decode actions: bad days"),
	}

	v, err := r.View()
	require.NoError(t, err)
	assert.NotNil(t, v.Trigger)
	assert.Equal(t, "decode actions: bad days", v.ActionsError)
	assert.JSONEq(t, `[]`, string(v.Actions))
}
