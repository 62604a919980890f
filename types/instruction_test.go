package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstruction_EnvelopeRoundTrip(t *testing.T) {
	instructions := []Instruction{
		MoveProcessForward{From: "Task_1", To: "Task_2", Action: "submit"},
		ExecuteServiceTask{ServiceTaskID: "pdf"},
		SendCorrespondence{Payload: json.RawMessage(`{"to":"123"}`)},
		PublishAltinnEvent{Payload: json.RawMessage(`{"type":"app.instance.completed"}`)},
	}

	for _, in := range instructions {
		t.Run(string(in.Kind()), func(t *testing.T) {
			raw, err := MarshalInstruction(in)
			require.NoError(t, err)

			out, err := UnmarshalInstruction(raw)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

func TestUnmarshalInstruction_UnknownKind(t *testing.T) {
	out, err := UnmarshalInstruction([]byte(`{"kind":"teleport","data":{"where":"mars"}}`))
	require.NoError(t, err)

	u, ok := out.(UnknownInstruction)
	require.True(t, ok)
	assert.Equal(t, InstructionKind("teleport"), u.Kind())
	assert.JSONEq(t, `{"where":"mars"}`, string(u.Data))
	assert.Error(t, u.Validate())

	// Re-marshalling keeps the original envelope intact.
	raw, err := MarshalInstruction(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"teleport","data":{"where":"mars"}}`, string(raw))
}

func TestUnmarshalInstruction_Errors(t *testing.T) {
	_, err := UnmarshalInstruction([]byte(`not json`))
	assert.Error(t, err)

	_, err = UnmarshalInstruction([]byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = UnmarshalInstruction([]byte(`{"kind":"execute_service_task","data":{"service_task_id":5}}`))
	assert.Error(t, err)

	_, err = MarshalInstruction(nil)
	assert.Error(t, err)
}

func TestInstruction_Validate(t *testing.T) {
	assert.Error(t, MoveProcessForward{From: "a"}.Validate())
	assert.NoError(t, MoveProcessForward{From: "a", To: "b"}.Validate())
	assert.Error(t, ExecuteServiceTask{}.Validate())
	assert.NoError(t, ExecuteInterfaceHooks{}.Validate())
	assert.Error(t, SendEformidling{}.Validate())
	assert.Error(t, SendFiksArkiv{Payload: json.RawMessage(`{`)}.Validate())
	assert.NoError(t, SendFiksArkiv{Payload: json.RawMessage(`{}`)}.Validate())
}
