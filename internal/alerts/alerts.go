// Package alerts notifies operators when the engine detects conditions that
// need a human: ledger corruption and critical chain anomalies.
package alerts

import (
	"fmt"
	"time"

	"github.com/cyphera/trust-engine/internal/trust/faults"
	"github.com/cyphera/trust-engine/internal/trust/token"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Alerter sends operator alerts over email.
type Alerter struct {
	client    *resend.Client
	logger    *zap.Logger
	fromEmail string
	toEmails  []string
}

// NewAlerter creates an alerter. toEmails is the on-call distribution list.
func NewAlerter(apiKey, fromEmail string, toEmails []string, logger *zap.Logger) *Alerter {
	return &Alerter{
		client:    resend.NewClient(apiKey),
		logger:    logger,
		fromEmail: fromEmail,
		toEmails:  toEmails,
	}
}

// LedgerCorruption alerts on a hash or sequence mismatch found during chain
// verification. Corruption is never auto-repaired, so this is always a page.
func (a *Alerter) LedgerCorruption(corruption *faults.LedgerCorruption) error {
	subject := fmt.Sprintf("[trust-engine] audit ledger corruption at sequence %d", corruption.SequenceNumber)
	body := fmt.Sprintf(
		"Audit ledger verification failed at %s.\n\nSequence: %d\nReason: %s\n\n"+
			"The ledger is append-only and corruption is not auto-repaired. "+
			"Investigate the storage layer before accepting new authorizations.",
		time.Now().UTC().Format(time.RFC3339), corruption.SequenceNumber, corruption.Reason)

	return a.send(subject, body, "ledger_corruption")
}

// CriticalAnomaly alerts on CRITICAL-severity delegation anomalies, such as
// circular references or revoked ancestors showing up in submitted chains.
func (a *Alerter) CriticalAnomaly(anomaly token.DelegationAnomaly) error {
	subject := fmt.Sprintf("[trust-engine] critical delegation anomaly: %s", anomaly.Kind)
	body := fmt.Sprintf(
		"A critical anomaly was detected during chain verification.\n\n"+
			"Kind: %s\nToken: %s\nDetail: %s\nDetected: %s",
		anomaly.Kind, anomaly.TokenID, anomaly.Detail, time.Now().UTC().Format(time.RFC3339))

	return a.send(subject, body, "critical_anomaly")
}

func (a *Alerter) send(subject, body, category string) error {
	params := &resend.SendEmailRequest{
		From:    a.fromEmail,
		To:      a.toEmails,
		Subject: subject,
		Text:    body,
		Tags: []resend.Tag{
			{Name: "category", Value: category},
		},
	}

	sent, err := a.client.Emails.Send(params)
	if err != nil {
		a.logger.Error("failed to send operator alert",
			zap.Error(err),
			zap.String("category", category))
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	a.logger.Info("operator alert sent",
		zap.String("email_id", sent.Id),
		zap.String("category", category))
	return nil
}
