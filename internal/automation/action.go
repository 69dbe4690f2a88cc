package automation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ActionKind is the wire tag of an action.
type ActionKind string

const (
	ActionAddLabel        ActionKind = "add_label"
	ActionAssignMember    ActionKind = "assign_member"
	ActionRemoveMember    ActionKind = "remove_member"
	ActionMoveToList      ActionKind = "move_to_list"
	ActionMoveToTop       ActionKind = "move_to_top"
	ActionMoveToBottom    ActionKind = "move_to_bottom"
	ActionSetStartDate    ActionKind = "set_start_date"
	ActionShiftDueByDays  ActionKind = "shift_due_by_days"
	ActionCreateChecklist ActionKind = "create_checklist"
	ActionComment         ActionKind = "comment"
	ActionArchiveNow      ActionKind = "archive_now"
)

// AllActionKinds returns every action kind the executor must handle.
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionAddLabel,
		ActionAssignMember,
		ActionRemoveMember,
		ActionMoveToList,
		ActionMoveToTop,
		ActionMoveToBottom,
		ActionSetStartDate,
		ActionShiftDueByDays,
		ActionCreateChecklist,
		ActionComment,
		ActionArchiveNow,
	}
}

// Action is one unit of mutation a rule performs. Actions are pure data.
type Action interface {
	Kind() ActionKind
	isAction()
}

type AddLabel struct{ LabelID string }
type AssignMember struct{ UserID string }
type RemoveMember struct{ UserID string }
type MoveToList struct{ ListID string }
type MoveToTop struct{}
type MoveToBottom struct{}

// SetStartDate sets the card start; When is "now", empty, or a timestamp.
type SetStartDate struct{ When string }

// ShiftDueByDays moves the due date; nil Days means the field was absent.
type ShiftDueByDays struct{ Days *int }

type CreateChecklist struct {
	Title string
	Items []string
}

type Comment struct{ Text string }
type ArchiveNow struct{}

// UnknownAction preserves an action whose type this build does not know.
type UnknownAction struct{ Type string }

func (AddLabel) Kind() ActionKind        { return ActionAddLabel }
func (AssignMember) Kind() ActionKind    { return ActionAssignMember }
func (RemoveMember) Kind() ActionKind    { return ActionRemoveMember }
func (MoveToList) Kind() ActionKind      { return ActionMoveToList }
func (MoveToTop) Kind() ActionKind       { return ActionMoveToTop }
func (MoveToBottom) Kind() ActionKind    { return ActionMoveToBottom }
func (SetStartDate) Kind() ActionKind    { return ActionSetStartDate }
func (ShiftDueByDays) Kind() ActionKind  { return ActionShiftDueByDays }
func (CreateChecklist) Kind() ActionKind { return ActionCreateChecklist }
func (Comment) Kind() ActionKind         { return ActionComment }
func (ArchiveNow) Kind() ActionKind      { return ActionArchiveNow }
func (a UnknownAction) Kind() ActionKind { return ActionKind(a.Type) }

func (AddLabel) isAction()        {}
func (AssignMember) isAction()    {}
func (RemoveMember) isAction()    {}
func (MoveToList) isAction()      {}
func (MoveToTop) isAction()       {}
func (MoveToBottom) isAction()    {}
func (SetStartDate) isAction()    {}
func (ShiftDueByDays) isAction()  {}
func (CreateChecklist) isAction() {}
func (Comment) isAction()         {}
func (ArchiveNow) isAction()      {}
func (UnknownAction) isAction()   {}

// actionWire is the stored JSON shape of one action.
type actionWire struct {
	Type    string   `json:"type"`
	LabelID string   `json:"label_id,omitempty"`
	UserID  string   `json:"user_id,omitempty"`
	ListID  string   `json:"list_id,omitempty"`
	When    string   `json:"when,omitempty"`
	Days    *int     `json:"days,omitempty"`
	Title   string   `json:"title,omitempty"`
	Items   []string `json:"items,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// DecodeAction parses one stored action.
func DecodeAction(raw []byte) (Action, error) {
	var w actionWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	return w.toAction(), nil
}

func (w actionWire) toAction() Action {
	switch ActionKind(w.Type) {
	case ActionAddLabel:
		return AddLabel{LabelID: w.LabelID}
	case ActionAssignMember:
		return AssignMember{UserID: w.UserID}
	case ActionRemoveMember:
		return RemoveMember{UserID: w.UserID}
	case ActionMoveToList:
		return MoveToList{ListID: w.ListID}
	case ActionMoveToTop:
		return MoveToTop{}
	case ActionMoveToBottom:
		return MoveToBottom{}
	case ActionSetStartDate:
		return SetStartDate{When: w.When}
	case ActionShiftDueByDays:
		return ShiftDueByDays{Days: w.Days}
	case ActionCreateChecklist:
		return CreateChecklist{Title: w.Title, Items: w.Items}
	case ActionComment:
		return Comment{Text: w.Text}
	case ActionArchiveNow:
		return ArchiveNow{}
	default:
		return UnknownAction{Type: w.Type}
	}
}

// DecodeActions parses a stored action list. An empty input is an empty list.
func DecodeActions(raw []byte) ([]Action, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return []Action{}, nil
	}
	var wires []actionWire
	if err := json.Unmarshal(raw, &wires); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	actions := make([]Action, len(wires))
	for i, w := range wires {
		actions[i] = w.toAction()
	}
	return actions, nil
}

// EncodeActions renders the stored JSON shape of an action list.
func EncodeActions(actions []Action) ([]byte, error) {
	wires := make([]actionWire, 0, len(actions))
	for i, a := range actions {
		w := actionWire{Type: string(a.Kind())}
		switch act := a.(type) {
		case AddLabel:
			w.LabelID = act.LabelID
		case AssignMember:
			w.UserID = act.UserID
		case RemoveMember:
			w.UserID = act.UserID
		case MoveToList:
			w.ListID = act.ListID
		case SetStartDate:
			w.When = act.When
		case ShiftDueByDays:
			w.Days = act.Days
		case CreateChecklist:
			w.Title = act.Title
			w.Items = act.Items
		case Comment:
			w.Text = act.Text
		case MoveToTop, MoveToBottom, ArchiveNow, UnknownAction:
		default:
			return nil, fmt.Errorf("encode actions: [%d] unsupported action %T", i, a)
		}
		wires = append(wires, w)
	}
	return json.Marshal(wires)
}

// Days is a convenience for building ShiftDueByDays literals.
func Days(n int) *int { return &n }
