package steps

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rendis/stepflow/internal/dispatch"
	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(id string, t schema.StepType, cfg map[string]any) schema.Step {
	return schema.Step{ID: id, Type: t, Config: cfg}
}

type recordingDispatcher struct {
	got   dispatch.Request
	reply string
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req dispatch.Request) (string, error) {
	d.got = req
	return d.reply, d.err
}

func TestAgentCall(t *testing.T) {
	d := &recordingDispatcher{reply: "on it"}
	e := NewAgentCallExecutor(d)

	res := e.Execute(context.Background(), step("a", schema.StepTypeAgentCall, map[string]any{
		"agent_id":    "writer",
		"session_key": "sess-1",
		"message":     "Draft a post about {{topic}}",
		"timeout_ms":  1500,
	}), map[string]any{"topic": "Go"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"response": "on it", "agent_id": "writer", "session_key": "sess-1"}, res.Output)
	assert.Equal(t, dispatch.Request{AgentID: "writer", SessionKey: "sess-1", Message: "Draft a post about Go", TimeoutMs: 1500}, d.got)
}

func TestAgentCall_MissingMessage(t *testing.T) {
	res := NewAgentCallExecutor(nil).Execute(context.Background(), step("a", schema.StepTypeAgentCall, nil), nil)
	assert.False(t, res.Success)
	assert.Equal(t, "agent_call step requires config.message", res.Error)
}

func TestAgentCall_DispatchFailure(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("runtime unavailable")}
	res := NewAgentCallExecutor(d).Execute(context.Background(),
		step("a", schema.StepTypeAgentCall, map[string]any{"message": "x"}), nil)
	assert.False(t, res.Success)
	assert.Equal(t, "runtime unavailable", res.Error)
}

func TestAgentCall_DefaultSimulated(t *testing.T) {
	res := NewAgentCallExecutor(nil).Execute(context.Background(),
		step("a", schema.StepTypeAgentCall, map[string]any{"message": "hi"}), nil)
	require.True(t, res.Success)
	assert.Contains(t, res.Output["response"], "hi")
}

func TestCondition_Restricted(t *testing.T) {
	e := NewConditionExecutor(nil)
	cfg := map[string]any{"expression": "count > 3", "on_true": "big", "on_false": "small"}

	res := e.Execute(context.Background(), step("c", schema.StepTypeCondition, cfg), map[string]any{"count": 5})
	require.True(t, res.Success)
	assert.Equal(t, "big", res.NextStep)
	assert.Equal(t, map[string]any{"condition_result": true}, res.Output)

	res = e.Execute(context.Background(), step("c", schema.StepTypeCondition, cfg), map[string]any{"count": 1})
	require.True(t, res.Success)
	assert.Equal(t, "small", res.NextStep)
	assert.Equal(t, false, res.Output["condition_result"])
}

func TestCondition_NoTargets(t *testing.T) {
	res := NewConditionExecutor(nil).Execute(context.Background(),
		step("c", schema.StepTypeCondition, map[string]any{"expression": "flag"}), map[string]any{"flag": true})
	require.True(t, res.Success)
	assert.Empty(t, res.NextStep)
}

func TestCondition_MissingExpression(t *testing.T) {
	res := NewConditionExecutor(nil).Execute(context.Background(), step("c", schema.StepTypeCondition, nil), nil)
	assert.False(t, res.Success)
	assert.Equal(t, "condition step requires config.expression", res.Error)
}

func TestCondition_Languages(t *testing.T) {
	conds, err := expressions.NewConditions()
	require.NoError(t, err)
	e := NewConditionExecutor(conds)
	data := map[string]any{"order": map[string]any{"total": 150}}

	res := e.Execute(context.Background(), step("c", schema.StepTypeCondition, map[string]any{
		"expression": "order.total > 100 && order.total < 200", "language": "expr", "on_true": "t",
	}), data)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "t", res.NextStep)

	res = e.Execute(context.Background(), step("c", schema.StepTypeCondition, map[string]any{
		"expression": "ctx.order.total > 1000", "language": "cel", "on_false": "f",
	}), data)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "f", res.NextStep)

	res = e.Execute(context.Background(), step("c", schema.StepTypeCondition, map[string]any{
		"expression": "order.total", "language": "expr",
	}), data)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "want bool")
}

func TestCondition_LanguageDisabled(t *testing.T) {
	res := NewConditionExecutor(nil).Execute(context.Background(), step("c", schema.StepTypeCondition, map[string]any{
		"expression": "true", "language": "cel",
	}), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not enabled")
}

func TestTransform(t *testing.T) {
	e := NewTransformExecutor(nil)
	runCtx := map[string]any{
		"s1":   map[string]any{"greeting": "hi Ada"},
		"user": map[string]any{"name": "Ada"},
	}

	res := e.Execute(context.Background(), step("t", schema.StepTypeTransform, map[string]any{
		"mappings": map[string]any{"out": "s1.greeting", "who": "user.name", "none": "nope.x"},
	}), runCtx)
	require.True(t, res.Success)
	assert.Equal(t, map[string]any{"out": "hi Ada", "who": "Ada"}, res.Output)
}

func TestTransform_NoMappings(t *testing.T) {
	res := NewTransformExecutor(nil).Execute(context.Background(), step("t", schema.StepTypeTransform, nil), nil)
	require.True(t, res.Success)
	assert.Empty(t, res.Output)
}

func TestTransform_Query(t *testing.T) {
	e := NewTransformExecutor(nil)
	runCtx := map[string]any{"items": []any{map[string]any{"qty": 2}, map[string]any{"qty": 3}}}

	res := e.Execute(context.Background(), step("t", schema.StepTypeTransform, map[string]any{
		"query": "{total: ([.items[].qty] | add)}",
	}), runCtx)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, float64(5), res.Output["total"])

	res = e.Execute(context.Background(), step("t", schema.StepTypeTransform, map[string]any{
		"query": ".items | length",
	}), runCtx)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Output["value"])

	res = e.Execute(context.Background(), step("t", schema.StepTypeTransform, map[string]any{
		"query": ".items[",
	}), runCtx)
	assert.False(t, res.Success)
}

func TestDelay(t *testing.T) {
	start := time.Now()
	res := DelayExecutor{}.Execute(context.Background(), step("d", schema.StepTypeDelay, map[string]any{"duration_ms": 50}), nil)
	require.True(t, res.Success)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(50), res.Output["delayed_ms"])
}

func TestDelay_Default(t *testing.T) {
	cfg := &schema.DelayConfig{}
	assert.Equal(t, time.Second, cfg.Duration())
}

func TestDelay_NegativeDurationDoesNotWait(t *testing.T) {
	res := DelayExecutor{}.Execute(context.Background(), step("d", schema.StepTypeDelay, map[string]any{"duration_ms": -5}), nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(0), res.Output["delayed_ms"])
}

func TestDelay_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := DelayExecutor{}.Execute(ctx, step("d", schema.StepTypeDelay, map[string]any{"duration_ms": 5000}), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "delay interrupted")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSetContext(t *testing.T) {
	res := SetContextExecutor{}.Execute(context.Background(), step("s1", schema.StepTypeSetContext, map[string]any{
		"values": map[string]any{
			"greeting": "hi {{name}}",
			"count":    3,
			// Sees the pre-step context, not sibling values.
			"echo": "{{greeting}}",
		},
	}), map[string]any{"name": "Ada"})

	require.True(t, res.Success)
	assert.Equal(t, "hi Ada", res.Output["greeting"])
	assert.Equal(t, float64(3), res.Output["count"])
	assert.Equal(t, "", res.Output["echo"])
}

func TestWebhook_Success(t *testing.T) {
	var gotBody map[string]any
	var gotMethod, gotPath, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Token")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	e := NewWebhookExecutor(WebhookConfig{})
	res := e.Execute(context.Background(), step("w", schema.StepTypeWebhook, map[string]any{
		"url":     srv.URL + "/orders/{{order.id}}",
		"headers": map[string]any{"X-Token": "secret"},
		"body":    map[string]any{"customer": "{{name}}"},
	}), map[string]any{"name": "Ada", "order": map[string]any{"id": "o-9"}})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/orders/o-9", gotPath)
	assert.Equal(t, "secret", gotHeader)
	assert.Equal(t, map[string]any{"customer": "Ada"}, gotBody)
	assert.Equal(t, 200, res.Output["status"])
	assert.Equal(t, map[string]any{"ok": true}, res.Output["data"])
}

func TestWebhook_BodyCarriesAgentReplyVerbatim(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
	}))
	defer srv.Close()

	reply := "line one\nshe said \"ok\""
	res := NewWebhookExecutor(WebhookConfig{}).Execute(context.Background(), step("w", schema.StepTypeWebhook, map[string]any{
		"url":  srv.URL,
		"body": map[string]any{"text": "{{ call.response }}"},
	}), map[string]any{"call": map[string]any{"response": reply}})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"text": reply}, gotBody)
}

func TestWebhook_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	res := NewWebhookExecutor(WebhookConfig{}).Execute(context.Background(), step("w", schema.StepTypeWebhook, map[string]any{
		"url": srv.URL, "method": "get",
	}), nil)
	require.True(t, res.Success)
	assert.Nil(t, res.Output["data"])
}

func TestWebhook_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	res := NewWebhookExecutor(WebhookConfig{}).Execute(context.Background(),
		step("w", schema.StepTypeWebhook, map[string]any{"url": srv.URL}), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "500")
	assert.Equal(t, 500, res.Output["status"])
	assert.Equal(t, map[string]any{"error": "boom"}, res.Output["data"])
}

func TestWebhook_MissingURL(t *testing.T) {
	res := NewWebhookExecutor(WebhookConfig{}).Execute(context.Background(), step("w", schema.StepTypeWebhook, nil), nil)
	assert.False(t, res.Success)
	assert.Equal(t, "webhook step requires config.url", res.Error)
}

func TestWebhook_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	res := NewWebhookExecutor(WebhookConfig{}).Execute(context.Background(), step("w", schema.StepTypeWebhook, map[string]any{
		"url": srv.URL, "timeout_ms": 50,
	}), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestWebhook_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewWebhookExecutor(WebhookConfig{}).Execute(context.Background(),
		step("w", schema.StepTypeWebhook, map[string]any{"url": url}), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "webhook request failed")
}

func TestWebhook_ResponseBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payload":"0123456789"}`))
	}))
	defer srv.Close()

	res := NewWebhookExecutor(WebhookConfig{MaxResponseBody: 5}).Execute(context.Background(),
		step("w", schema.StepTypeWebhook, map[string]any{"url": srv.URL}), nil)
	require.True(t, res.Success)
	assert.Nil(t, res.Output["data"], "truncated body is not valid JSON")
}
