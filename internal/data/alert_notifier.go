package data

import (
	"Bulwark/internal/model"
	pkglog "Bulwark/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// LogAlertNotifier implements biz.AlertNotifier by logging through the
// alert/success categories. Triggered alerts land at error level, which is
// the page-a-human path.
type LogAlertNotifier struct {
	logger *pkglog.LogHelper
}

// NewLogAlertNotifier creates a new log-backed alert notifier
func NewLogAlertNotifier(logger log.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: pkglog.NewLogHelper(logger),
	}
}

// OnAlertTriggered logs a newly triggered alert with the observed value.
func (n *LogAlertNotifier) OnAlertTriggered(alert *model.Alert, value float64) {
	n.logger.Alert("Alert triggered",
		"alert_id", alert.ID,
		"alert", alert.Name,
		"metric", alert.MetricName,
		"condition", alert.Condition,
		"threshold", alert.Threshold,
		"value", value,
		"severity", alert.Severity)
}

// OnAlertResolved logs an alert returning below its threshold.
func (n *LogAlertNotifier) OnAlertResolved(alert *model.Alert) {
	n.logger.Success("Alert resolved",
		"alert_id", alert.ID,
		"alert", alert.Name,
		"metric", alert.MetricName)
}
