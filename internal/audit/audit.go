package audit

import (
	"context"

	"github.com/weiawesome/chatlog-service/pkg/log"
)

// Audit actions for the chat service.
const (
	ActionSendRoom      = "chat.send_room"
	ActionSendGlobal    = "chat.send_global"
	ActionInvite        = "chat.invite"
	ActionReadHistory   = "chat.read_history"
	ActionPublishFailed = "chat.publish_failed"
	ActionConnect       = "chat.connect"
	ActionDisconnect    = "chat.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, identity, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldIdentity, identity).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, identity, targetID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldIdentity, identity).
		Str(FieldTargetID, targetID).
		Str(FieldDetail, detail).
		Msg(msg)
}
