package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Decode failure classes. The caller discriminates with errors.Is; neither
// is ever fatal to message processing.
var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownTopic     = errors.New("unknown topic")
)

// importantFields lists per-kind payload fields that downstream rendering
// relies on. A missing field is recoverable: it is zero-filled and reported
// as a warning.
var importantFields = map[Kind][]string{
	KindStarted:        {"session_id", "config"},
	KindStopped:        {"session_id", "final_stats"},
	KindError:          {"error_type", "error_message"},
	KindPositionOpened: {"market_name", "entry_price", "position_size"},
	KindTradeCompleted: {"market_name", "pnl", "pnl_pct"},
	KindBalanceUpdate:  {"balance", "equity", "total_pnl"},
}

// Codec decodes raw broker payloads into events. It is a pure transform:
// all anomalies are returned or surfaced as warnings, never logged here,
// so the caller controls verbosity.
type Codec struct {
	prefix string
	now    func() time.Time
}

func NewCodec(topicPrefix string) *Codec {
	return &Codec{
		prefix: topicPrefix,
		now:    time.Now,
	}
}

// Decode maps topic to an event kind and parses the JSON payload.
//
// Returned warnings describe recoverable anomalies (missing timestamp,
// missing important fields); the event is still valid when warnings are
// present. Errors wrap ErrUnknownTopic or ErrMalformedPayload.
func (c *Codec) Decode(topic string, payload []byte) (*Event, []string, error) {
	kind, err := c.kindForTopic(topic)
	if err != nil {
		return nil, nil, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, nil, fmt.Errorf("%w: topic %s: %v", ErrMalformedPayload, topic, err)
	}

	var warnings []string

	ts, ok := numericField(fields, "timestamp")
	var timestamp time.Time
	if ok && ts > 0 {
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * float64(time.Second))
		timestamp = time.Unix(sec, nsec)
	} else {
		timestamp = c.now()
		warnings = append(warnings, fmt.Sprintf("missing timestamp on topic %s, using receipt time", topic))
	}

	for _, name := range importantFields[kind] {
		if _, ok := fields[name]; !ok {
			fields[name] = defaultFieldValue(name)
			warnings = append(warnings, fmt.Sprintf("missing field %q on topic %s, using default", name, topic))
		}
	}

	ev := &Event{
		Kind:      kind,
		Timestamp: timestamp,
		Fields:    fields,
	}

	if kind == KindTradeCompleted {
		if id, ok := fields["trade_id"].(string); ok && id != "" {
			ev.Key = id
		} else {
			warnings = append(warnings, fmt.Sprintf("trade completed without trade_id on topic %s, duplicate detection disabled", topic))
		}
	}

	return ev, warnings, nil
}

func (c *Codec) kindForTopic(topic string) (Kind, error) {
	suffix, ok := strings.CutPrefix(topic, c.prefix)
	if !ok {
		return "", fmt.Errorf("%w: %s (prefix %s)", ErrUnknownTopic, topic, c.prefix)
	}

	switch suffix {
	case TopicStarted:
		return KindStarted, nil
	case TopicStopped:
		return KindStopped, nil
	case TopicError:
		return KindError, nil
	case TopicHeartbeat:
		return KindHeartbeat, nil
	case TopicPositionOpened:
		return KindPositionOpened, nil
	case TopicTradeCompleted:
		return KindTradeCompleted, nil
	case TopicBalanceUpdate:
		return KindBalanceUpdate, nil
	case TopicSessionStats:
		return KindSessionStats, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}

func numericField(fields map[string]interface{}, name string) (float64, bool) {
	v, ok := fields[name]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// defaultFieldValue picks a zero value matching the field's expected shape.
func defaultFieldValue(name string) interface{} {
	switch name {
	case "session_id", "market_name", "error_type", "error_message":
		return ""
	case "config", "final_stats":
		return map[string]interface{}{}
	default:
		// Numeric fields: balances, prices, sizes, pnl.
		return 0.0
	}
}
