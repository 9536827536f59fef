// Package notify renders the HTML admin-alert bodies sent via the bot's
// own MessagingClient, ported from the original's notification_service.py
// (spec §6.3, §4.5 step 4).
package notify

import (
	"fmt"
	"strings"

	"github.com/devstz/autoposter-node/internal/messaging"
)

// errorKindNames maps a classifier Kind to the human-readable reason shown
// in the distribution-failure alert (spec §6.3).
var errorKindNames = map[messaging.Kind]string{
	messaging.KindChatNotFound:    "Chat not found",
	messaging.KindBotKicked:       "Bot was kicked from the group",
	messaging.KindBotBlocked:      "Bot was blocked by the user",
	messaging.KindForbidden:       "Forbidden",
	messaging.KindUserDeactivated: "User account deactivated",
	messaging.KindNetworkError:    "Network error",
	messaging.KindServerError:    "Server error",
	messaging.KindUnknown:        "Unknown error",
}

// DistributionFailure renders the critical-failure alert of spec §6.3:
// title, then Bot/Group/Post/Reason/Details lines, then an auto-removal
// confirmation.
func DistributionFailure(botUsername string, botID int64, groupTitle string, chatID int64, postLabel string, kind messaging.Kind, errMsg string) string {
	var b strings.Builder
	b.WriteString("<b>⚠️ DISTRIBUTION FAILURE</b>\n\n")
	fmt.Fprintf(&b, "Bot: @%s (%d)\n", botUsername, botID)
	fmt.Fprintf(&b, "Group: %s (%d)\n", htmlEscape(groupTitle), chatID)
	fmt.Fprintf(&b, "Post: %s\n", htmlEscape(postLabel))
	fmt.Fprintf(&b, "Reason: %s\n", reasonFor(kind))
	fmt.Fprintf(&b, "Details: %s\n\n", htmlEscape(errMsg))
	b.WriteString("The group has been automatically removed from this bot.")
	return b.String()
}

func reasonFor(kind messaging.Kind) string {
	if name, ok := errorKindNames[kind]; ok {
		return name
	}
	return string(kind)
}

// maxTruncatedLen is the per-stream cap on stdout/stderr embedded in the
// update-failure alert (spec §4.5 step 4).
const maxTruncatedLen = 500

// UpdateFailure renders the update-command-failure alert of spec §4.5
// step 4: exit code plus truncated stdout/stderr.
func UpdateFailure(exitCode int, stdout, stderr string) string {
	var b strings.Builder
	b.WriteString("<b>⚠️ UPDATE COMMAND FAILED</b>\n\n")
	fmt.Fprintf(&b, "Exit code: %d\n\n", exitCode)
	fmt.Fprintf(&b, "<b>stdout:</b>\n<code>%s</code>\n\n", htmlEscape(truncate(stdout, maxTruncatedLen)))
	fmt.Fprintf(&b, "<b>stderr:</b>\n<code>%s</code>", htmlEscape(truncate(stderr, maxTruncatedLen)))
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func htmlEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}
