package types

import "github.com/DoyleJ11/scouting-backend/internal/engine"

const (
	MsgMove       = "move"
	MsgMarkChosen = "mark_chosen"
	MsgReplace    = "replace"
	MsgCommit     = "commit"

	MsgPicklistUpdate = "picklist_update"
	MsgCommitted      = "committed"
	MsgError          = "error"
)

type ClientMessage struct {
	Type     string        `json:"type"`
	Team     int           `json:"team,omitempty"`
	To       string        `json:"to,omitempty"`
	Index    *int          `json:"index,omitempty"`
	Picklist *engine.State `json:"picklist,omitempty"`
}

type ServerMessage struct {
	Type     string        `json:"type"` // "picklist_update" | "committed" | "error"
	Version  int64         `json:"version"`
	Picklist *engine.State `json:"picklist,omitempty"`
	Error    string        `json:"error,omitempty"`
}
