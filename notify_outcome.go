package identity

import "context"

// onNotifyOutcome records the terminal result of a one-time-password
// delivery job. Failures become a dead-letter audit event and a log line;
// they are never surfaced to the login that triggered them.
func (e *Engine) onNotifyOutcome(job notifyJob, err error) {
	if err == nil {
		e.metricInc(MetricNotifyDelivered)
		return
	}

	e.metricInc(MetricNotifyDeadLettered)
	e.log.Error().
		Err(err).
		Str("email", job.Email).
		Msg("one-time password delivery dead-lettered")
	e.emitAudit(context.Background(), auditEventNotificationDeadLetter, false, "", job.Email, nil, func() map[string]string {
		return map[string]string{"reason": err.Error()}
	})
}
