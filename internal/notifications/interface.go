package notifications

import "github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendReport(report *models.Report) error
	SendAlert(alert *models.AlertRecord) error
}
