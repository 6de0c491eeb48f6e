package dialog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Callback payload vocabulary. These strings travel inside Telegram inline
// buttons and must stay bit-exact for compatibility with messages already
// delivered to clients.
const (
	payloadMenuElig   = "MENU:ELIG"
	payloadMenuSched  = "MENU:SCHED"
	payloadConfirmYes = "CONFIRM:SIM"
	payloadConfirmNo  = "CONFIRM:NAO"
	payloadSlotCancel = "SLOT:CANCEL"

	answerYes = "SIM"
	answerNo  = "NAO"
)

// ErrUnknownPayload marks callback data the engine does not understand.
// The transport shell turns it into a generic restart reply, never a crash.
var ErrUnknownPayload = errors.New("dialog: unknown callback payload")

// Event is a parsed inbound button press. The engine dispatches on these
// variants and never pattern-matches raw payload strings.
type Event interface {
	event()
}

// MenuEvent selects one of the two flows from the main menu.
type MenuEvent struct {
	Scheduling bool // false = eligibility questionnaire
}

// EligAnswerEvent answers the eligibility question identified by Key.
type EligAnswerEvent struct {
	Key string
	Yes bool
}

// ConfirmEvent confirms or cancels the collected scheduling form.
type ConfirmEvent struct {
	Confirmed bool
}

// SlotChoiceEvent picks a listed slot, or cancels slot selection.
type SlotChoiceEvent struct {
	Cancel bool
	Row    int
	Col    int
}

func (MenuEvent) event()       {}
func (EligAnswerEvent) event() {}
func (ConfirmEvent) event()    {}
func (SlotChoiceEvent) event() {}

// ParseCallback converts raw callback data into a typed event. Anything it
// cannot interpret comes back as ErrUnknownPayload.
func ParseCallback(data string) (Event, error) {
	parts := strings.Split(data, ":")
	switch parts[0] {
	case "MENU":
		if len(parts) != 2 {
			break
		}
		switch parts[1] {
		case "ELIG":
			return MenuEvent{}, nil
		case "SCHED":
			return MenuEvent{Scheduling: true}, nil
		}
	case "ELIG":
		if len(parts) != 3 || parts[1] == "" {
			break
		}
		switch parts[2] {
		case answerYes:
			return EligAnswerEvent{Key: parts[1], Yes: true}, nil
		case answerNo:
			return EligAnswerEvent{Key: parts[1]}, nil
		}
	case "CONFIRM":
		if len(parts) != 2 {
			break
		}
		switch parts[1] {
		case answerYes:
			return ConfirmEvent{Confirmed: true}, nil
		case answerNo:
			return ConfirmEvent{}, nil
		}
	case "SLOT":
		if len(parts) == 2 && parts[1] == "CANCEL" {
			return SlotChoiceEvent{Cancel: true}, nil
		}
		if len(parts) != 3 {
			break
		}
		row, err := strconv.Atoi(parts[1])
		if err != nil || row < 0 {
			break
		}
		col, err := strconv.Atoi(parts[2])
		if err != nil || col < 0 {
			break
		}
		return SlotChoiceEvent{Row: row, Col: col}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, data)
}

func eligPayload(key string, yes bool) string {
	if yes {
		return "ELIG:" + key + ":" + answerYes
	}
	return "ELIG:" + key + ":" + answerNo
}

func slotPayload(row, col int) string {
	return "SLOT:" + strconv.Itoa(row) + ":" + strconv.Itoa(col)
}
