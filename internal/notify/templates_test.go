package notify

import (
	"strings"
	"testing"

	"github.com/devstz/autoposter-node/internal/messaging"
)

func TestDistributionFailureEscapesAndLabelsReason(t *testing.T) {
	body := DistributionFailure("mybot", 123, "Spam & Friends", -1001, "t.me/chan/4", messaging.KindBotKicked, "forbidden: bot was kicked from the group chat")

	if !strings.Contains(body, "Spam &amp; Friends") {
		t.Errorf("expected HTML-escaped group title, got: %s", body)
	}
	if !strings.Contains(body, "Bot was kicked from the group") {
		t.Errorf("expected human-readable reason for KindBotKicked, got: %s", body)
	}
	if !strings.Contains(body, "@mybot (123)") {
		t.Errorf("expected bot identity line, got: %s", body)
	}
	if !strings.Contains(body, "automatically removed") {
		t.Errorf("expected removal confirmation line, got: %s", body)
	}
}

func TestDistributionFailureUnknownKindFallsBackToRawValue(t *testing.T) {
	body := DistributionFailure("bot", 1, "g", 1, "p", messaging.Kind("SOMETHING_NEW"), "err")
	if !strings.Contains(body, "SOMETHING_NEW") {
		t.Errorf("expected raw kind fallback, got: %s", body)
	}
}

func TestUpdateFailureTruncatesLongStreams(t *testing.T) {
	long := strings.Repeat("x", maxTruncatedLen+100)
	body := UpdateFailure(1, long, "short stderr")

	if strings.Contains(body, strings.Repeat("x", maxTruncatedLen+1)) {
		t.Error("expected stdout to be truncated to maxTruncatedLen")
	}
	if !strings.Contains(body, "short stderr") {
		t.Error("expected untruncated stderr to be present")
	}
	if !strings.Contains(body, "Exit code: 1") {
		t.Error("expected exit code line")
	}
}
