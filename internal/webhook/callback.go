// Package webhook turns inbound provider callbacks into reconciler signals
// and payment settlements.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"studio/internal/domain"
	"studio/internal/providers/aggregator"
)

// Shape is the structural variant of a generation callback.
type Shape string

const (
	ShapeUnknown Shape = "unknown"
	// ShapeInfo carries a nested data.info object and signals the outcome
	// through the top-level code.
	ShapeInfo Shape = "info"
	// ShapeRecord carries a flat data.state with the result as a JSON string.
	ShapeRecord Shape = "record"
)

// Callback is a parsed generation callback.
type Callback struct {
	Shape  Shape
	TaskID string
	// Terminal is false for record callbacks that report a running task.
	Terminal bool
	Signal   domain.Signal
}

type callbackEnvelope struct {
	Code *int                       `json:"code"`
	Msg  string                     `json:"msg"`
	Data map[string]json.RawMessage `json:"data"`
}

type infoPayload struct {
	ResultURLs  []string `json:"resultUrls"`
	ResultURLs2 []string `json:"result_urls"`
	OriginURLs  []string `json:"originUrls"`
}

// ParseCallback decides the callback shape from which fields are present and
// decodes it. Errors wrap domain.ErrMalformedWebhook.
func ParseCallback(raw []byte) (Callback, error) {
	var env callbackEnvelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Callback{}, malformed("body is not a JSON object: %v", err)
	}
	if env.Data == nil {
		return Callback{}, malformed("missing data object")
	}
	var taskID string
	if rawID, ok := env.Data["taskId"]; ok {
		_ = json.Unmarshal(rawID, &taskID)
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Callback{}, malformed("missing data.taskId")
	}

	switch shapeOf(env.Data) {
	case ShapeInfo:
		return parseInfo(env, taskID, raw)
	case ShapeRecord:
		return parseRecord(env, taskID)
	default:
		return Callback{Shape: ShapeUnknown, TaskID: taskID}, malformed("unrecognised callback shape for task %s", taskID)
	}
}

func shapeOf(data map[string]json.RawMessage) Shape {
	if _, ok := data["info"]; ok {
		return ShapeInfo
	}
	if state, ok := data["state"]; ok && isJSONString(state) {
		return ShapeRecord
	}
	return ShapeUnknown
}

func parseInfo(env callbackEnvelope, taskID string, raw []byte) (Callback, error) {
	if env.Code == nil {
		return Callback{}, malformed("info callback without code")
	}
	cb := Callback{Shape: ShapeInfo, TaskID: taskID, Terminal: true}
	if *env.Code != http.StatusOK {
		cb.Signal = domain.Signal{
			Outcome:     domain.OutcomeFailure,
			ErrorDetail: aggregator.FailureDetail(fmt.Sprint(*env.Code), env.Msg),
			Source:      domain.SourceWebhook,
		}
		return cb, nil
	}
	var info infoPayload
	if err := json.Unmarshal(env.Data["info"], &info); err != nil {
		return Callback{}, malformed("data.info: %v", err)
	}
	urls := info.ResultURLs
	if len(urls) == 0 {
		urls = info.ResultURLs2
	}
	if len(urls) == 0 {
		urls = info.OriginURLs
	}
	if len(urls) == 0 {
		return Callback{}, malformed("success callback without result urls")
	}
	cb.Signal = domain.Signal{
		Outcome: domain.OutcomeSuccess,
		Result:  &domain.ResultPayload{URLs: urls, Raw: json.RawMessage(raw)},
		Source:  domain.SourceWebhook,
	}
	return cb, nil
}

func parseRecord(env callbackEnvelope, taskID string) (Callback, error) {
	rec := aggregator.Record{TaskID: taskID}
	_ = json.Unmarshal(env.Data["state"], &rec.State)
	if v, ok := env.Data["resultJson"]; ok {
		_ = json.Unmarshal(v, &rec.ResultJSON)
	}
	if v, ok := env.Data["failCode"]; ok {
		rec.FailCode = scalarString(v)
	}
	if v, ok := env.Data["failMsg"]; ok {
		_ = json.Unmarshal(v, &rec.FailMsg)
	}
	res, err := rec.PollResult()
	if err != nil {
		return Callback{}, malformed("%v", err)
	}
	sig, terminal := res.Signal(domain.SourceWebhook)
	return Callback{Shape: ShapeRecord, TaskID: taskID, Terminal: terminal, Signal: sig}, nil
}

func isJSONString(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '"'
}

// scalarString reads a JSON string or number as text.
func scalarString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedWebhook, fmt.Sprintf(format, args...))
}
