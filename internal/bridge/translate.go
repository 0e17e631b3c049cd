package bridge

import (
	"strconv"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/nixlim/sqlsidecar/internal/notify"
)

// translateRequest flattens an OTLP logs export into notifications. Records
// that do not look like shim notifications (no recognizable kind, no surface
// handle) are skipped; the stream carries no guarantees and junk is expected.
func translateRequest(req *collogspb.ExportLogsServiceRequest) []notify.Notification {
	var out []notify.Notification
	for _, rl := range req.GetResourceLogs() {
		resourcePID := 0
		for _, kv := range rl.GetResource().GetAttributes() {
			if kv.GetKey() == "process.pid" {
				resourcePID = int(kv.GetValue().GetIntValue())
			}
		}
		for _, sl := range rl.GetScopeLogs() {
			for _, rec := range sl.GetLogRecords() {
				if n, ok := translateRecord(rec, resourcePID); ok {
					out = append(out, n)
				}
			}
		}
	}
	return out
}

func translateRecord(rec *logspb.LogRecord, resourcePID int) (notify.Notification, bool) {
	n := notify.Notification{PID: resourcePID}

	kindName := rec.GetEventName()
	for _, kv := range rec.GetAttributes() {
		switch kv.GetKey() {
		case "kind":
			if kindName == "" {
				kindName = kv.GetValue().GetStringValue()
			}
		case "surface":
			n.Surface = notify.Handle(kv.GetValue().GetIntValue())
		case "pid":
			n.PID = int(kv.GetValue().GetIntValue())
		default:
			if n.Payload == nil {
				n.Payload = make(map[string]string)
			}
			n.Payload[kv.GetKey()] = attrString(kv.GetValue())
		}
	}

	n.Kind = notify.KindFromString(kindName)
	if n.Kind == notify.KindUnknown || n.Surface == 0 {
		return notify.Notification{}, false
	}

	if ts := rec.GetTimeUnixNano(); ts != 0 {
		n.Time = time.Unix(0, int64(ts))
	} else {
		n.Time = time.Now()
	}
	return n, true
}

func attrString(v *commonpb.AnyValue) string {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	default:
		return ""
	}
}
