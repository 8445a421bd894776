package media

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Reason
	}{
		{"nil", nil, ReasonUnknown},
		{"permission", errors.New("operation not permitted: permission denied"), ReasonPermission},
		{"denied", errors.New("access denied by user"), ReasonPermission},
		{"not found", errors.New("device not found"), ReasonNotFound},
		{"driver miss", errors.New("failed to find the best driver that fits the constraints"), ReasonNotFound},
		{"busy", errors.New("device or resource busy"), ReasonBusy},
		{"in use", errors.New("camera already in use"), ReasonBusy},
		{"other", errors.New("something odd"), ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); got != tc.want {
				t.Errorf("classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestAcquisitionErrorWrapping(t *testing.T) {
	cause := errors.New("device gone")
	err := &AcquisitionError{Kind: "video", Reason: ReasonNotFound, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("AcquisitionError does not unwrap to its cause")
	}
	if err.Error() == "" {
		t.Error("empty error string")
	}

	bare := &AcquisitionError{Kind: "audio", Reason: ReasonPermission}
	if bare.Error() == "" {
		t.Error("empty error string without cause")
	}
}
