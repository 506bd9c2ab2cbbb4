// Audit logging: structured JSONL events describing what the core did to the
// index and the conversation store. Events are written through zap so they can
// be tailed or post-processed without parsing free-form log lines.

package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Session events
	AuditSessionStart AuditEventType = "session_start"
	AuditSessionEnd   AuditEventType = "session_end"
	AuditTurnSaved    AuditEventType = "turn_saved"

	// Index events
	AuditIndexRebuild AuditEventType = "index_rebuild"
	AuditFileIndexed  AuditEventType = "file_indexed"
	AuditFileSkipped  AuditEventType = "file_skipped"
	AuditFilePruned   AuditEventType = "file_pruned"

	// Embedding / retrieval events
	AuditEmbeddingCall AuditEventType = "embedding_call"
	AuditRetrieval     AuditEventType = "retrieval"

	// Retention events
	AuditSummaryCreated AuditEventType = "summary_created"
	AuditCleanup        AuditEventType = "cleanup"
)

var (
	auditLogger *zap.SugaredLogger
	auditMu     sync.Mutex
)

// InitAudit sets up the audit event writer under the workspace logs directory.
// A no-op when debug mode is disabled; Audit calls are then silently dropped.
func InitAudit(ws string) error {
	auditMu.Lock()
	defer auditMu.Unlock()

	if !IsDebugMode() {
		return nil
	}

	dir := filepath.Join(ws, ".gptshell", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, "audit.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "event"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel)
	auditLogger = zap.New(core).Sugar()
	return nil
}

// Audit writes one audit event with alternating key/value fields.
func Audit(event AuditEventType, keysAndValues ...any) {
	auditMu.Lock()
	l := auditLogger
	auditMu.Unlock()
	if l == nil {
		return
	}
	l.Infow(string(event), keysAndValues...)
}

// SyncAudit flushes buffered audit events (call at shutdown).
func SyncAudit() {
	auditMu.Lock()
	l := auditLogger
	auditMu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}
