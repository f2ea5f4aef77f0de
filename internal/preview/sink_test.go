package preview

import "testing"

func TestTee(t *testing.T) {
	var got []string
	a := FrameSinkFunc(func(f Frame) { got = append(got, "a") })
	b := FrameSinkFunc(func(f Frame) { got = append(got, "b") })

	sink := Tee(a, nil, b)
	sink.OnFrame(Frame{Sequence: 1})

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected [a b], got %v", got)
	}
}

func TestStateStrings(t *testing.T) {
	if DeviceOpening.String() != "opening" || DeviceError.String() != "error" {
		t.Error("Unexpected device state names")
	}
	if SessionConfiguring.String() != "configuring" || SessionFailed.String() != "failed" {
		t.Error("Unexpected session state names")
	}
	if DeviceState(99).String() != "unknown" || SessionState(99).String() != "unknown" {
		t.Error("Expected unknown for out of range states")
	}
}
