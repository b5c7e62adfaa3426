package outbox

const punchRecordedSchema = `{
  "type": "object",
  "title": "PunchRecorded",
  "properties": {
    "punch_id": {"type": "string"},
    "employee_id": {"type": "string"},
    "account_id": {"type": "string"},
    "type": {"type": "string", "enum": ["entry", "break_start", "break_end", "exit"]},
    "punched_at": {"type": "string", "format": "date-time"},
    "source": {"type": "string"},
    "device_id": {"type": "string"},
    "verified": {"type": "boolean"}
  },
  "required": ["punch_id", "employee_id", "account_id", "type", "punched_at", "source", "verified"],
  "additionalProperties": false
}`

const syncRunCompletedSchema = `{
  "type": "object",
  "title": "SyncRunCompleted",
  "properties": {
    "sync_run_id": {"type": "string"},
    "kind": {"type": "string"},
    "status": {"type": "string", "enum": ["success", "partial", "error"]},
    "device_id": {"type": "string"},
    "synced": {"type": "integer"},
    "failed": {"type": "integer"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["sync_run_id", "kind", "status", "synced", "failed", "completed_at"],
  "additionalProperties": false
}`
