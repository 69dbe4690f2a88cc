package automation

import "time"

// Board-side records as the engine sees them.

type Board struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type List struct {
	ID       string  `json:"id"`
	BoardID  string  `json:"board_id"`
	Name     string  `json:"name"`
	Position float64 `json:"position"`
}

// Card is the atomic unit of work. Position is a float64 so two neighbours
// can always be split by their midpoint until precision runs out.
type Card struct {
	ID         string     `json:"id"`
	BoardID    string     `json:"board_id"`
	ListID     string     `json:"list_id"`
	Title      string     `json:"title"`
	Position   float64    `json:"position"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Archived reports whether the card has an archive timestamp.
func (c Card) Archived() bool {
	return c.ArchivedAt != nil
}

type Label struct {
	ID      string `json:"id"`
	BoardID string `json:"board_id"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
}

type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Checklist struct {
	ID     string `json:"id"`
	CardID string `json:"card_id"`
	Title  string `json:"title"`
}

type ChecklistItem struct {
	ID          string  `json:"id"`
	ChecklistID string  `json:"checklist_id"`
	Text        string  `json:"text"`
	Position    float64 `json:"position"`
	Done        bool    `json:"done"`
}

type CardComment struct {
	ID        string    `json:"id"`
	CardID    string    `json:"card_id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// IsChecklistComplete reports whether a checklist counts as completed:
// it has at least one item and every item is done.
func IsChecklistComplete(items []ChecklistItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.Done {
			return false
		}
	}
	return true
}
