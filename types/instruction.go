package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// InstructionKind names an Instruction variant on the wire and in storage.
type InstructionKind string

const (
	KindMoveProcessForward    InstructionKind = "move_process_forward"
	KindExecuteServiceTask    InstructionKind = "execute_service_task"
	KindExecuteInterfaceHooks InstructionKind = "execute_interface_hooks"
	KindSendCorrespondence    InstructionKind = "send_correspondence"
	KindSendEformidling       InstructionKind = "send_eformidling"
	KindSendFiksArkiv         InstructionKind = "send_fiks_arkiv"
	KindPublishAltinnEvent    InstructionKind = "publish_altinn_event"
)

// Instruction describes the side effect a task performs. The set of
// implementations is closed: only types in this package satisfy it.
type Instruction interface {
	Kind() InstructionKind
	Validate() error
	isInstruction()
}

// MoveProcessForward asks the app to move the workflow instance from one
// process element to the next.
type MoveProcessForward struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Action string `json:"action,omitempty"`
}

type ExecuteServiceTask struct {
	ServiceTaskID string `json:"service_task_id"`
}

type ExecuteInterfaceHooks struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SendCorrespondence struct {
	Payload json.RawMessage `json:"payload"`
}

type SendEformidling struct {
	Payload json.RawMessage `json:"payload"`
}

type SendFiksArkiv struct {
	Payload json.RawMessage `json:"payload"`
}

type PublishAltinnEvent struct {
	Payload json.RawMessage `json:"payload"`
}

// UnknownInstruction carries an envelope whose kind this build does not
// recognise. It is never dispatched; executing it fails the task for good.
type UnknownInstruction struct {
	Name InstructionKind `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (MoveProcessForward) Kind() InstructionKind    { return KindMoveProcessForward }
func (ExecuteServiceTask) Kind() InstructionKind    { return KindExecuteServiceTask }
func (ExecuteInterfaceHooks) Kind() InstructionKind { return KindExecuteInterfaceHooks }
func (SendCorrespondence) Kind() InstructionKind    { return KindSendCorrespondence }
func (SendEformidling) Kind() InstructionKind       { return KindSendEformidling }
func (SendFiksArkiv) Kind() InstructionKind         { return KindSendFiksArkiv }
func (PublishAltinnEvent) Kind() InstructionKind    { return KindPublishAltinnEvent }
func (u UnknownInstruction) Kind() InstructionKind  { return u.Name }

func (MoveProcessForward) isInstruction()    {}
func (ExecuteServiceTask) isInstruction()    {}
func (ExecuteInterfaceHooks) isInstruction() {}
func (SendCorrespondence) isInstruction()    {}
func (SendEformidling) isInstruction()       {}
func (SendFiksArkiv) isInstruction()         {}
func (PublishAltinnEvent) isInstruction()    {}
func (UnknownInstruction) isInstruction()    {}

func (i MoveProcessForward) Validate() error {
	if i.From == "" || i.To == "" {
		return errors.New("move process forward: from and to are required")
	}
	return nil
}

func (i ExecuteServiceTask) Validate() error {
	if i.ServiceTaskID == "" {
		return errors.New("execute service task: service task id is required")
	}
	return nil
}

func (ExecuteInterfaceHooks) Validate() error { return nil }

func (i SendCorrespondence) Validate() error { return requirePayload(i.Kind(), i.Payload) }

func (i SendEformidling) Validate() error { return requirePayload(i.Kind(), i.Payload) }

func (i SendFiksArkiv) Validate() error { return requirePayload(i.Kind(), i.Payload) }

func (i PublishAltinnEvent) Validate() error { return requirePayload(i.Kind(), i.Payload) }

func (u UnknownInstruction) Validate() error {
	return fmt.Errorf("unknown instruction kind %q", u.Name)
}

func requirePayload(kind InstructionKind, payload json.RawMessage) error {
	if len(payload) == 0 {
		return fmt.Errorf("%s: payload is required", kind)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%s: payload is not valid JSON", kind)
	}
	return nil
}

type instructionEnvelope struct {
	Kind InstructionKind `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalInstruction encodes an instruction as {"kind": ..., "data": ...}.
func MarshalInstruction(i Instruction) ([]byte, error) {
	if i == nil {
		return nil, errors.New("instruction is nil")
	}
	if u, ok := i.(UnknownInstruction); ok {
		return json.Marshal(instructionEnvelope{Kind: u.Name, Data: u.Data})
	}
	data, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s instruction: %w", i.Kind(), err)
	}
	return json.Marshal(instructionEnvelope{Kind: i.Kind(), Data: data})
}

// UnmarshalInstruction decodes an envelope written by MarshalInstruction.
// An unrecognised kind yields an UnknownInstruction rather than an error.
func UnmarshalInstruction(raw []byte) (Instruction, error) {
	var env instructionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid instruction envelope: %w", err)
	}
	if env.Kind == "" {
		return nil, errors.New("instruction envelope has no kind")
	}

	switch env.Kind {
	case KindMoveProcessForward:
		return decodeInto[MoveProcessForward](env.Kind, env.Data)
	case KindExecuteServiceTask:
		return decodeInto[ExecuteServiceTask](env.Kind, env.Data)
	case KindExecuteInterfaceHooks:
		return decodeInto[ExecuteInterfaceHooks](env.Kind, env.Data)
	case KindSendCorrespondence:
		return decodeInto[SendCorrespondence](env.Kind, env.Data)
	case KindSendEformidling:
		return decodeInto[SendEformidling](env.Kind, env.Data)
	case KindSendFiksArkiv:
		return decodeInto[SendFiksArkiv](env.Kind, env.Data)
	case KindPublishAltinnEvent:
		return decodeInto[PublishAltinnEvent](env.Kind, env.Data)
	default:
		return UnknownInstruction{Name: env.Kind, Data: env.Data}, nil
	}
}

func decodeInto[T Instruction](kind InstructionKind, data json.RawMessage) (Instruction, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid %s instruction: %w", kind, err)
	}
	return v, nil
}

// InstructionJSON wraps an Instruction so it can be embedded in JSON documents.
type InstructionJSON struct {
	Instruction
}

func (w InstructionJSON) MarshalJSON() ([]byte, error) {
	return MarshalInstruction(w.Instruction)
}

func (w *InstructionJSON) UnmarshalJSON(raw []byte) error {
	i, err := UnmarshalInstruction(raw)
	if err != nil {
		return err
	}
	w.Instruction = i
	return nil
}
