// Package event defines the canonical representation of a single tracked
// interaction during a writing session.
//
// IMPORTANT: This package models interaction *behavior* - which keys were
// pressed is deliberately not part of the required schema. The capture layer
// may attach key or text context where a metric needs it (e.g. paste length),
// but a well-formed event stream with nothing beyond type and timestamp is
// still fully analyzable.
//
// Events arrive from an external capture layer (editor plugin, browser
// extension). The core performs no deep semantic validation: fields that are
// irrelevant to an event's type are simply absent, and calculators must treat
// missing fields as "no signal".
package event

import "time"

// Type tags a tracked interaction. The set is closed: adding a new type is
// additive and must not change the meaning of existing ones. Unknown tags
// received on the wire are preserved as-is so that newer capture layers can
// talk to older analyzers.
type Type string

// Input events.
const (
	TypeKeyDown Type = "keydown"
	TypeKeyUp   Type = "keyup"
	TypePaste   Type = "paste"
	TypeCopy    Type = "copy"
	TypeCut     Type = "cut"
	TypeFocus   Type = "focus"
	TypeBlur    Type = "blur"
	TypeInput   Type = "input"
	TypeDelete  Type = "delete"
	TypeSelect  Type = "select"
)

// Formatting events.
const (
	TypeBold            Type = "bold"
	TypeItalic          Type = "italic"
	TypeUnderline       Type = "underline"
	TypeStrikethrough   Type = "strikethrough"
	TypeCode            Type = "code"
	TypeSubscript       Type = "subscript"
	TypeSuperscript     Type = "superscript"
	TypeFontFamily      Type = "font-family"
	TypeFontSize        Type = "font-size"
	TypeFontColor       Type = "font-color"
	TypeHighlightColor  Type = "highlight-color"
	TypeHeading         Type = "heading"
	TypeAlign           Type = "align"
	TypeIndent          Type = "indent"
	TypeOutdent         Type = "outdent"
	TypeLineSpacing     Type = "line-spacing"
	TypeClearFormatting Type = "clear-formatting"
)

// Structural (list) events.
const (
	TypeListOrdered   Type = "list-ordered"
	TypeListUnordered Type = "list-unordered"
	TypeListChecklist Type = "list-checklist"
)

// Find/replace events.
const (
	TypeFind       Type = "find"
	TypeReplace    Type = "replace"
	TypeReplaceAll Type = "replace-all"
)

// Group is the coarse category of an event type.
type Group int

const (
	GroupUnknown Group = iota
	GroupInput
	GroupFormatting
	GroupStructural
	GroupFindReplace
)

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupInput:
		return "input"
	case GroupFormatting:
		return "formatting"
	case GroupStructural:
		return "structural"
	case GroupFindReplace:
		return "find-replace"
	default:
		return "unknown"
	}
}

var groups = map[Type]Group{
	TypeKeyDown: GroupInput,
	TypeKeyUp:   GroupInput,
	TypePaste:   GroupInput,
	TypeCopy:    GroupInput,
	TypeCut:     GroupInput,
	TypeFocus:   GroupInput,
	TypeBlur:    GroupInput,
	TypeInput:   GroupInput,
	TypeDelete:  GroupInput,
	TypeSelect:  GroupInput,

	TypeBold:            GroupFormatting,
	TypeItalic:          GroupFormatting,
	TypeUnderline:       GroupFormatting,
	TypeStrikethrough:   GroupFormatting,
	TypeCode:            GroupFormatting,
	TypeSubscript:       GroupFormatting,
	TypeSuperscript:     GroupFormatting,
	TypeFontFamily:      GroupFormatting,
	TypeFontSize:        GroupFormatting,
	TypeFontColor:       GroupFormatting,
	TypeHighlightColor:  GroupFormatting,
	TypeHeading:         GroupFormatting,
	TypeAlign:           GroupFormatting,
	TypeIndent:          GroupFormatting,
	TypeOutdent:         GroupFormatting,
	TypeLineSpacing:     GroupFormatting,
	TypeClearFormatting: GroupFormatting,

	TypeListOrdered:   GroupStructural,
	TypeListUnordered: GroupStructural,
	TypeListChecklist: GroupStructural,

	TypeFind:       GroupFindReplace,
	TypeReplace:    GroupFindReplace,
	TypeReplaceAll: GroupFindReplace,
}

// GroupOf returns the coarse category for a type, GroupUnknown for tags not
// in the closed enumeration.
func GroupOf(t Type) Group {
	return groups[t]
}

// Known reports whether t belongs to the closed enumeration.
func Known(t Type) bool {
	_, ok := groups[t]
	return ok
}

// TrackerEvent is one observed interaction. Only EventType and Timestamp are
// always populated; the remaining fields are context the capture layer
// attaches when relevant to the event type.
type TrackerEvent struct {
	EventType Type `json:"eventType"`

	// Timestamp is capture time in milliseconds since the Unix epoch.
	// Within a stored session sequence timestamps are monotonically
	// non-decreasing (see Resequence).
	Timestamp int64 `json:"timestamp"`

	// TargetElement identifies the DOM element or editor region the
	// interaction targeted, when the capture layer knows it.
	TargetElement string `json:"targetElement,omitempty"`

	// Key is the logical key name for keydown/keyup events.
	Key string `json:"key,omitempty"`

	// Text is the inserted or removed text for input/paste/delete events.
	Text string `json:"text,omitempty"`

	// CursorPosition is the caret offset after the interaction.
	CursorPosition *int `json:"cursorPosition,omitempty"`

	// SelectionStart/SelectionEnd bound the active selection for select
	// and formatting events.
	SelectionStart *int `json:"selectionStart,omitempty"`
	SelectionEnd   *int `json:"selectionEnd,omitempty"`

	// Metadata carries type-specific extras the schema does not model.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Time returns the capture timestamp as a time.Time.
func (e TrackerEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// TextLen returns the rune count of the event's text payload.
func (e TrackerEvent) TextLen() int {
	return len([]rune(e.Text))
}

// Event is a TrackerEvent persisted with identity. Events are owned by the
// session they belong to and are immutable once created.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	ProjectID string    `json:"projectId"`
	CreatedAt time.Time `json:"createdAt"`

	TrackerEvent
}

// Resequence clamps timestamps so the sequence is monotonically
// non-decreasing, starting from floor (the last accepted timestamp of the
// sequence being appended to, or 0 for a fresh session). Relative order is
// never changed; an event that claims to predate its predecessor is pulled
// forward to the predecessor's timestamp. The slice is modified in place and
// the final timestamp is returned.
func Resequence(events []TrackerEvent, floor int64) int64 {
	last := floor
	for i := range events {
		if events[i].Timestamp < last {
			events[i].Timestamp = last
		}
		last = events[i].Timestamp
	}
	return last
}
