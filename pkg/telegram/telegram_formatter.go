package telegram

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/pkg/utils"
)

const maxErrorsPerStep = 3

// escape makes free text safe outside Markdown entities. Identifiers such as step names carry
// underscores that Telegram would otherwise read as italic markers.
func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// FormatRunReportMessage renders a workflow report as a short Markdown summary.
func FormatRunReportMessage(report *dto.RunReport) string {
	var sb strings.Builder

	icon := "✅"
	if !report.Success {
		icon = "📛"
	}
	sb.WriteString(fmt.Sprintf("%s *Workflow run* %s\n", icon, escape(report.State)))
	sb.WriteString(fmt.Sprintf("🆔 `%s`\n", report.RunID))
	sb.WriteString(fmt.Sprintf("🕒 %s (%s)\n", utils.PrettyDate(report.StartedAt), report.FinishedAt.Sub(report.StartedAt).Round(time.Second)))
	if report.Error != "" {
		sb.WriteString(fmt.Sprintf("⚠️ %s\n", escape(report.Error)))
	}
	sb.WriteString("\n")

	for _, name := range dto.StepNames {
		step, ok := report.Steps[name]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("• `%s`: %s", name, escape(step.Status)))
		if len(step.Counts) > 0 {
			keys := make([]string, 0, len(step.Counts))
			for k := range step.Counts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, len(keys))
			for i, k := range keys {
				parts[i] = fmt.Sprintf("%s=%d", escape(k), step.Counts[k])
			}
			sb.WriteString(" (" + strings.Join(parts, ", ") + ")")
		}
		sb.WriteString("\n")

		for i, e := range step.Errors {
			if i == maxErrorsPerStep {
				sb.WriteString(fmt.Sprintf("   … %d more\n", len(step.Errors)-maxErrorsPerStep))
				break
			}
			sb.WriteString(fmt.Sprintf("   ↳ %s\n", escape(e)))
		}
	}
	return sb.String()
}

// FormatErrorAlertMessage renders an operational alert.
func FormatErrorAlertMessage(time time.Time, errType string, errMsg string, data string) string {
	return fmt.Sprintf(`📛 \[ERROR ALERT] 
%s
🔧 %s
⚠️ %s

📄 Data: %s
`, utils.PrettyDate(time), escape(errType), escape(errMsg), escape(data))
}
