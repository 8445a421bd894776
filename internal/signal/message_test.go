package signal

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		wantErr bool
		want    Type
	}{
		{"join", `{"type":"join","meetingCode":"ABC123","fromUserId":"1"}`, false, TypeJoin},
		{"unknown type passes through", `{"type":"whatever"}`, false, Type("whatever")},
		{"missing type", `{"meetingCode":"ABC123"}`, true, ""},
		{"not json", `{{{`, true, ""},
		{"empty", ``, true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Decode([]byte(tc.data))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Decode(%q) succeeded, want error", tc.data)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q): %v", tc.data, err)
			}
			if m.Type != tc.want {
				t.Errorf("type = %q, want %q", m.Type, tc.want)
			}
		})
	}
}

func TestDecodeMissingTypeSentinel(t *testing.T) {
	if _, err := Decode([]byte(`{"fromUserId":"1"}`)); !errors.Is(err, ErrMissingType) {
		t.Errorf("err = %v, want ErrMissingType", err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	m, err := Message{Type: TypeJoin, MeetingCode: "ABC123"}.WithPayload(JoinPayload{Token: "tok"})
	if err != nil {
		t.Fatalf("WithPayload: %v", err)
	}
	var p JoinPayload
	if err := m.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Token != "tok" {
		t.Errorf("token = %q, want %q", p.Token, "tok")
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	var p JoinPayload
	if err := (Message{Type: TypeJoin}).DecodePayload(&p); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("err = %v, want ErrEmptyPayload", err)
	}
}

func TestBoolDefaultsFalse(t *testing.T) {
	if (Message{Type: TypeMicState}).Bool() {
		t.Error("absent isOn reported true")
	}
	on := true
	if !(Message{Type: TypeMicState, IsOn: &on}).Bool() {
		t.Error("isOn=true reported false")
	}
}
