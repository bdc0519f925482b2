// Package command parses and applies control commands from the external
// controller.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformed is returned by ParseCommand for payloads that are not a JSON object.
var ErrMalformed = errors.New("malformed command")

// Action names a command.
type Action string

const (
	ActionActivateVent   Action = "ACTIVATE_VENT"
	ActionDeactivateVent Action = "DEACTIVATE_VENT"
	ActionSetAlert       Action = "SET_ALERT"
	ActionGlobalAlarm    Action = "GLOBAL_ALARM"
)

// Command is the inbound wire shape. Unknown fields are ignored.
type Command struct {
	Action Action `json:"action"`
	Room   string `json:"room,omitempty"`
	Level  string `json:"level,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

// ParseCommand decodes a command payload.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cmd, nil
}

// Marshal encodes c for publishing.
func (c Command) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// String renders the command the way the console shows it.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(string(c.Action))
	if c.Room != "" {
		fmt.Fprintf(&b, " [room: %s]", c.Room)
	}
	if c.Level != "" {
		fmt.Fprintf(&b, " [level: %s]", c.Level)
	}
	if c.Active != nil {
		fmt.Fprintf(&b, " [active: %t]", *c.Active)
	}
	return b.String()
}

// Outcome is what Apply did with a command.
type Outcome string

const (
	// Applied means the store was mutated.
	Applied Outcome = "applied"
	// Ignored means the command was recorded but changed nothing.
	Ignored Outcome = "ignored"
	// Interlocked means a safety guard refused the command. Retrying once
	// the hazard has cleared will succeed.
	Interlocked Outcome = "interlocked"
)

// Result describes the effect of one command.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// Record is a received command with its outcome.
type Record struct {
	Command    Command   `json:"command"`
	ReceivedAt time.Time `json:"received_at"`
	Result     Result    `json:"result"`
}
