package messaging

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"network class", NewNetworkError("boom"), KindNetworkError},
		{"network substring", NewBadRequestError("connection reset by peer"), KindNetworkError},
		{"server class", NewServerError("boom"), KindServerError},
		{"server http code", NewBadRequestError("received 502 from upstream"), KindServerError},
		{"chat not found class", NewChatNotFoundError("nope"), KindChatNotFound},
		{"chat not found substring", NewBadRequestError("Chat not found"), KindChatNotFound},
		{"bot kicked", NewForbiddenError("Forbidden: bot was kicked from the group chat"), KindBotKicked},
		{"bot blocked", NewForbiddenError("Forbidden: bot was blocked by the user"), KindBotBlocked},
		{"user deactivated", NewForbiddenError("Forbidden: user is deactivated"), KindUserDeactivated},
		{"forbidden", NewForbiddenError("Forbidden: some other reason"), KindForbidden},
		{"unknown", NewBadRequestError("message is not modified"), KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.err.Error(), got, tc.want)
			}
		})
	}
}

func TestClassifyIsPureFunction(t *testing.T) {
	err := NewForbiddenError("Forbidden: bot was kicked")
	k1 := Classify(err)
	k2 := Classify(err)
	if k1 != k2 {
		t.Fatalf("classify not deterministic: %s != %s", k1, k2)
	}
}

func TestIsCriticalAndTransient(t *testing.T) {
	critical := []Kind{KindChatNotFound, KindBotKicked, KindBotBlocked, KindForbidden, KindUserDeactivated}
	for _, k := range critical {
		if !k.IsCritical() {
			t.Errorf("%s should be critical", k)
		}
		if k.IsTransient() {
			t.Errorf("%s should not be transient", k)
		}
	}

	transient := []Kind{KindNetworkError, KindServerError}
	for _, k := range transient {
		if k.IsCritical() {
			t.Errorf("%s should not be critical", k)
		}
		if !k.IsTransient() {
			t.Errorf("%s should be transient", k)
		}
	}

	if KindUnknown.IsCritical() || KindUnknown.IsTransient() {
		t.Error("UNKNOWN should be neither critical nor transient")
	}
}
