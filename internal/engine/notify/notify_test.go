package notify

import (
	"context"
	"testing"

	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeMailer) SendEmail(_ context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &ses.SendEmailOutput{}, nil
}

func offerJob() *models.Job {
	return &models.Job{ID: "job-1", Company: "Acme", Position: "SRE", Stage: models.StageInterview}
}

func TestStageMoved_SendsOfferEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT email FROM users`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("dev@example.com"))

	mailer := &fakeMailer{}
	n := NewNotifier(true, "noreply@jobtrack.dev", mailer, db, logger.NewTestLogger(t))
	n.StageMoved(context.Background(), "user-1", offerJob(), models.StageOffer)

	require.Len(t, mailer.inputs, 1)
	assert.Equal(t, []string{"dev@example.com"}, mailer.inputs[0].Destination.ToAddresses)
	assert.Contains(t, *mailer.inputs[0].Message.Subject.Data, "Acme")
}

func TestStageMoved_IgnoresNonOfferMoves(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mailer := &fakeMailer{}
	n := NewNotifier(true, "noreply@jobtrack.dev", mailer, db, logger.NewTestLogger(t))
	n.StageMoved(context.Background(), "user-1", offerJob(), models.StageInterview)
	assert.Empty(t, mailer.inputs)
}

func TestStageMoved_DisabledDoesNothing(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mailer := &fakeMailer{}
	n := NewNotifier(false, "noreply@jobtrack.dev", mailer, db, logger.NewTestLogger(t))
	n.StageMoved(context.Background(), "user-1", offerJob(), models.StageOffer)
	assert.Empty(t, mailer.inputs)
}

func TestStageMoved_MissingEmailSkipsSend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT email FROM users`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"email"}))

	mailer := &fakeMailer{}
	n := NewNotifier(true, "noreply@jobtrack.dev", mailer, db, logger.NewTestLogger(t))
	// must not panic or send
	n.StageMoved(context.Background(), "user-1", offerJob(), models.StageOffer)
	assert.Empty(t, mailer.inputs)
}

func TestStageMoved_SendFailureIsNonFatal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT email FROM users`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("dev@example.com"))

	mailer := &fakeMailer{err: assert.AnError}
	n := NewNotifier(true, "noreply@jobtrack.dev", mailer, db, logger.NewTestLogger(t))
	n.StageMoved(context.Background(), "user-1", offerJob(), models.StageOffer)
}
