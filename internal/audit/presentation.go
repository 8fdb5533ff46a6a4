// presentation.go computes the read-side display fields attached to audit
// records: relative time, action icon, and action color. These are derived at
// query time and never persisted.
package audit

import (
	"fmt"
	"time"

	"github.com/stockledger/stockledger/internal/db/models"
)

// Fallbacks for actions outside the known set.
const (
	fallbackIcon  = "📋"
	fallbackColor = "secondary"
)

// actionIcons and actionColors are exhaustive over models.KnownActions; the
// TestActionPresentationExhaustive test keeps them that way when a new action
// constant is added.
var actionIcons = map[models.Action]string{
	models.ActionDispatch:   "🚚",
	models.ActionReturn:     "📦",
	models.ActionDamage:     "⚠️",
	models.ActionRecovery:   "♻️",
	models.ActionBulkUpload: "📤",
	models.ActionLogin:      "🔑",
	models.ActionLogout:     "🚪",
	models.ActionCreate:     "➕",
	models.ActionUpdate:     "✏️",
	models.ActionDelete:     "🗑️",
	models.ActionTransfer:   "🔄",
}

var actionColors = map[models.Action]string{
	models.ActionDispatch:   "primary",
	models.ActionReturn:     "info",
	models.ActionDamage:     "danger",
	models.ActionRecovery:   "success",
	models.ActionBulkUpload: "warning",
	models.ActionLogin:      "success",
	models.ActionLogout:     "secondary",
	models.ActionCreate:     "success",
	models.ActionUpdate:     "warning",
	models.ActionDelete:     "danger",
	models.ActionTransfer:   "info",
}

// ActionIcon returns the display symbol for an action, with a fixed fallback
// for unknown actions.
func ActionIcon(a models.Action) string {
	if icon, ok := actionIcons[a]; ok {
		return icon
	}
	return fallbackIcon
}

// ActionColor returns the semantic color name for an action, with a fixed
// fallback for unknown actions.
func ActionColor(a models.Action) string {
	if color, ok := actionColors[a]; ok {
		return color
	}
	return fallbackColor
}

// TimeAgo renders the age of createdAt relative to now as a human-readable
// string. Pure function of its two arguments; callers inject now.
//
//	< 60 s   → "Just now"
//	< 1 h    → "N minutes ago"
//	< 24 h   → "N hours ago"
//	< 30 d   → "N days ago"
//	older    → absolute date
func TimeAgo(now, createdAt time.Time) string {
	d := int64(now.Sub(createdAt).Seconds())
	switch {
	case d < 60:
		return "Just now"
	case d < 3600:
		return fmt.Sprintf("%d minutes ago", d/60)
	case d < 86400:
		return fmt.Sprintf("%d hours ago", d/3600)
	case d < 2592000:
		return fmt.Sprintf("%d days ago", d/86400)
	default:
		return createdAt.Format("Jan 2, 2006")
	}
}
