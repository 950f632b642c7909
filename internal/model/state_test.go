package model

import (
	"encoding/json"
	"testing"
)

func TestMountState_JSON(t *testing.T) {
	m := Mount{ID: "m1", Path: "/mounts/m1", State: MountOpenInUse}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Mount
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.State != MountOpenInUse {
		t.Errorf("State = %v, want %v", got.State, MountOpenInUse)
	}
}

func TestMountState_UnknownIsNeverPersisted(t *testing.T) {
	if _, err := json.Marshal(Mount{ID: "m1"}); err == nil {
		t.Error("Marshal() of Unknown mount state expected error, got nil")
	}

	var m Mount
	if err := json.Unmarshal([]byte(`{"id":"m1","state":"unknown"}`), &m); err == nil {
		t.Error("Unmarshal() of unknown mount state expected error, got nil")
	}
}

func TestBurnState_String(t *testing.T) {
	tests := []struct {
		state BurnState
		want  string
	}{
		{BurnOpen, "open"},
		{BurnPurchasing, "purchasing"},
		{BurnDone, "done"},
		{BurnState(42), "BurnState(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTotalSize(t *testing.T) {
	entries := []FileEntry{{Filename: "a", ByteSize: 3}, {Filename: "b", ByteSize: 4}}
	if got := TotalSize(entries); got != 7 {
		t.Errorf("TotalSize() = %d, want 7", got)
	}
	if got := TotalSize(nil); got != 0 {
		t.Errorf("TotalSize(nil) = %d, want 0", got)
	}
}
