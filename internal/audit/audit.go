package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

// Audit actions for collab-service.
const (
	ActionCreateRoom          = "room.create"
	ActionRegisterParticipant = "participant.register"
	ActionLogin               = "participant.login"
	ActionLoginFailed         = "participant.login_failed"
	ActionRelayOpen           = "relay.open"
	ActionRelayReject         = "relay.reject"
	ActionRelayClose          = "relay.close"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger. The room
// and participant come from the logger, see log.WithRoom and log.WithParticipant.
func Log(ctx context.Context, action, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldDetail, detail).
		Msg(msg)
}
