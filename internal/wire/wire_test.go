package wire

import (
	"encoding/json"
	"testing"
)

func TestRequestFrameShape(t *testing.T) {
	frame, err := json.Marshal(NewRequest(7, MethodCallTool, CallToolParams{
		Name:      "read_file",
		Arguments: map[string]any{"path": "go.mod"},
	}))
	if err != nil {
		t.Fatal(err)
	}

	want := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"read_file","arguments":{"path":"go.mod"}}}`
	if string(frame) != want {
		t.Fatalf("frame = %s, want %s", frame, want)
	}
}

func TestNotificationOmitsID(t *testing.T) {
	frame, err := json.Marshal(NewNotification(MethodInitialized, struct{}{}))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["id"]; ok {
		t.Fatalf("notification frame carries an id: %s", frame)
	}
}

func TestResponseDistinguishesResultAndError(t *testing.T) {
	var ok Response
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":3,"result":{"tools":[]}}`), &ok); err != nil {
		t.Fatal(err)
	}
	if ok.ID == nil || *ok.ID != 3 || ok.Error != nil {
		t.Fatalf("unexpected decode: %+v", ok)
	}

	var fail Response
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":4,"error":{"code":-32601,"message":"method not found"}}`), &fail); err != nil {
		t.Fatal(err)
	}
	if fail.Error == nil || fail.Error.Code != -32601 {
		t.Fatalf("unexpected decode: %+v", fail)
	}

	var note Response
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/progress"}`), &note); err != nil {
		t.Fatal(err)
	}
	if note.ID != nil {
		t.Fatal("frame without id decoded with an id")
	}
}
