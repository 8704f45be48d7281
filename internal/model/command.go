package model

import "github.com/google/uuid"

type CommandKind string

const (
	CommandLED    CommandKind = "LED"
	CommandMotor  CommandKind = "MOTOR"
	CommandSystem CommandKind = "SYSTEM"
)

type CommandAction string

const (
	ActionOn    CommandAction = "ON"
	ActionOff   CommandAction = "OFF"
	ActionReset CommandAction = "RESET"
)

// SubjectFoco is the spotlight actuator.
const SubjectFoco = "FOCO"

// Command is a request to change one actuator on the device.
type Command struct {
	ID      uuid.UUID     `json:"id"`
	Kind    CommandKind   `json:"type"`
	Subject string        `json:"subject"`
	Action  CommandAction `json:"action"`
	Origin  Origin        `json:"origin"`
}

// NewCommand stamps a fresh command id. Commands issued here originate from the web client.
func NewCommand(kind CommandKind, subject string, action CommandAction) Command {
	return Command{
		ID:      uuid.New(),
		Kind:    kind,
		Subject: subject,
		Action:  action,
		Origin:  OriginWeb,
	}
}

// ActionFor maps a boolean target state to ON/OFF.
func ActionFor(on bool) CommandAction {
	if on {
		return ActionOn
	}
	return ActionOff
}

// DispatchState is the lifecycle of one in-flight command.
type DispatchState string

const (
	StateIdle         DispatchState = "IDLE"
	StateOptimistic   DispatchState = "OPTIMISTIC"
	StateCommitted    DispatchState = "COMMITTED"
	StateRolledBack   DispatchState = "ROLLED_BACK"
	StateAuthRequired DispatchState = "AUTH_REQUIRED"
)

// Ack reports how a dispatch ended and the snapshot it left behind.
type Ack struct {
	CommandID    uuid.UUID     `json:"commandId"`
	Subject      string        `json:"subject"`
	State        DispatchState `json:"state"`
	Snapshot     LocalSnapshot `json:"snapshot"`
	Inconsistent bool          `json:"inconsistent"`
}
