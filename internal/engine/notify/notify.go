// Package notify sends the optional congratulations email when a command
// moves a job to OFFER. Strictly best-effort: a notification failure never
// fails or delays the command outcome beyond the send attempt itself.
package notify

import (
	"context"
	"database/sql"
	"fmt"

	commonaws "jobtrack-commands/internal/common/aws"
	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Mailer is implemented by the SES client wrapper.
type Mailer interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

var _ Mailer = (*commonaws.SESClient)(nil)

type Notifier struct {
	enabled bool
	from    string
	mailer  Mailer
	db      *sql.DB
	logger  logger.Logger
}

func NewNotifier(enabled bool, from string, mailer Mailer, db *sql.DB, log logger.Logger) *Notifier {
	return &Notifier{
		enabled: enabled,
		from:    from,
		mailer:  mailer,
		db:      db,
		logger:  log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// StageMoved emails the user when one of their jobs reaches OFFER.
func (n *Notifier) StageMoved(ctx context.Context, userID string, job *models.Job, to models.Stage) {
	if !n.enabled || n.mailer == nil || to != models.StageOffer {
		return
	}

	user := models.User{ID: userID}
	err := n.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&user.Email)
	if err != nil || user.Email == "" {
		n.logger.Warn("notification skipped, no email for user", map[string]interface{}{
			"userId": userID,
		})
		return
	}

	subject := fmt.Sprintf("Offer stage: %s", job.Company)
	body := fmt.Sprintf("Your application at %s (%s) just moved to the OFFER stage. Congratulations!",
		job.Company, job.Role())

	_, err = n.mailer.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.from),
		Destination: &types.Destination{ToAddresses: []string{user.Email}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		n.logger.Warn("offer notification failed", map[string]interface{}{
			"userId": userID,
			"jobId":  job.ID,
			"error":  err.Error(),
		})
		return
	}

	n.logger.Info("offer notification sent", map[string]interface{}{
		"userId": userID,
		"jobId":  job.ID,
	})
}
