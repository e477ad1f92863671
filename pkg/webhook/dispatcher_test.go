package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/harun/actionserver/internal/metrics"
	"github.com/harun/actionserver/pkg/executor"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu        sync.Mutex
	run       func(ctx context.Context, call *executor.ActionCall) (*executor.Result, error)
	reloadErr error
	actions   []string
	runs      int
	reloads   int
	order     []string
}

func (f *fakeExecutor) Run(ctx context.Context, call *executor.ActionCall) (*executor.Result, error) {
	f.mu.Lock()
	f.runs++
	f.order = append(f.order, "run")
	run := f.run
	f.mu.Unlock()

	if run == nil {
		return &executor.Result{Events: []executor.Event{}}, nil
	}
	return run(ctx, call)
}

func (f *fakeExecutor) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	f.order = append(f.order, "reload")
	return f.reloadErr
}

func (f *fakeExecutor) Actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func newTestDispatcher(t *testing.T, exec Executor, autoReload bool) (*Dispatcher, *metrics.Metrics) {
	t.Helper()

	versions, err := NewVersionChecker("3.10.0", zerolog.Nop())
	require.NoError(t, err)

	m := metrics.NewMetrics()
	d, err := NewDispatcher(DispatcherConfig{
		Executor:   exec,
		Counter:    m,
		Versions:   versions,
		AutoReload: autoReload,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return d, m
}

func bodyJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestNewDispatcherRequiresDependencies(t *testing.T) {
	versions, err := NewVersionChecker("3.10.0", zerolog.Nop())
	require.NoError(t, err)

	_, err = NewDispatcher(DispatcherConfig{Versions: versions})
	assert.Error(t, err)

	_, err = NewDispatcher(DispatcherConfig{Executor: &fakeExecutor{}})
	assert.Error(t, err)

	d, err := NewDispatcher(DispatcherConfig{Executor: &fakeExecutor{}, Versions: versions})
	require.NoError(t, err)
	resp := d.Dispatch(context.Background(), []byte(`{"next_action":"a"}`))
	assert.Equal(t, 200, resp.Status)
}

func TestDispatchInvalidBody(t *testing.T) {
	bodies := map[string]string{
		"empty":            ``,
		"not json":         `next_action=greet`,
		"array":            `[{"next_action":"greet"}]`,
		"null":             `null`,
		"string":           `"greet"`,
		"wrong field type": `{"next_action": 5}`,
		"tracker not map":  `{"next_action":"greet","tracker":[]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			exec := &fakeExecutor{}
			d, m := newTestDispatcher(t, exec, true)

			resp := d.Dispatch(context.Background(), []byte(body))

			assert.Equal(t, 400, resp.Status)
			assert.Equal(t, ErrorResponse{Error: "Invalid body request"}, resp.Body)
			assert.NoError(t, resp.Err)
			assert.Zero(t, exec.runs)
			assert.Zero(t, exec.reloads)
			assert.Equal(t, 0, testutil.CollectAndCount(m.ActionCount))
		})
	}
}

func TestDispatchSuccess(t *testing.T) {
	exec := &fakeExecutor{
		run: func(ctx context.Context, call *executor.ActionCall) (*executor.Result, error) {
			assert.Equal(t, "action_greet", call.NextAction)
			assert.Equal(t, "user-1", call.SenderID)
			return &executor.Result{
				Events:    []executor.Event{executor.SlotSet("name", "Ada")},
				Responses: []executor.Message{{"text": "Hello"}},
			}, nil
		},
	}
	d, m := newTestDispatcher(t, exec, false)

	resp := d.Dispatch(context.Background(), []byte(`{"next_action":"action_greet","sender_id":"user-1","tracker":{},"domain":{},"version":"3.10.2"}`))

	require.Equal(t, 200, resp.Status)
	assert.JSONEq(t,
		`{"events":[{"event":"slot","name":"name","value":"Ada","timestamp":null}],"responses":[{"text":"Hello"}]}`,
		bodyJSON(t, resp.Body))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionCount.WithLabelValues("action_greet")))
	assert.Zero(t, exec.reloads)
}

func TestDispatchEmptyEvents(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeExecutor{}, false)

	resp := d.Dispatch(context.Background(), []byte(`{"next_action":"a","tracker":{}}`))

	require.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `{"events":[]}`, bodyJSON(t, resp.Body))
}

func TestDispatchRejection(t *testing.T) {
	exec := &fakeExecutor{
		run: func(ctx context.Context, call *executor.ActionCall) (*executor.Result, error) {
			return nil, &executor.RejectionError{
				ActionName: "action_x",
				Message:    "Custom action 'action_x' rejected execution.",
			}
		},
	}
	d, m := newTestDispatcher(t, exec, false)

	resp := d.Dispatch(context.Background(), []byte(`{"next_action":"action_x","tracker":{}}`))

	assert.Equal(t, 400, resp.Status)
	assert.JSONEq(t,
		`{"error":"Custom action 'action_x' rejected execution.","action_name":"action_x"}`,
		bodyJSON(t, resp.Body))
	assert.NoError(t, resp.Err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionCount.WithLabelValues("action_x")))
}

func TestDispatchNotFound(t *testing.T) {
	exec := &fakeExecutor{
		run: func(ctx context.Context, call *executor.ActionCall) (*executor.Result, error) {
			return nil, &executor.NotFoundError{
				ActionName: call.NextAction,
				Message:    "No registered action found for name 'unknown'.",
			}
		},
	}
	d, m := newTestDispatcher(t, exec, false)

	resp := d.Dispatch(context.Background(), []byte(`{"next_action":"unknown","tracker":{}}`))

	assert.Equal(t, 404, resp.Status)
	assert.JSONEq(t,
		`{"error":"No registered action found for name 'unknown'.","action_name":"unknown"}`,
		bodyJSON(t, resp.Body))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionCount.WithLabelValues("unknown")))
}

func TestDispatchWithoutActionNameDoesNotCount(t *testing.T) {
	exec := &fakeExecutor{
		run: func(ctx context.Context, call *executor.ActionCall) (*executor.Result, error) {
			return nil, nil
		},
	}
	d, m := newTestDispatcher(t, exec, false)

	resp := d.Dispatch(context.Background(), []byte(`{"tracker":{}}`))

	assert.Equal(t, 200, resp.Status)
	assert.Nil(t, resp.Body)
	assert.NoError(t, resp.Err)
	assert.Equal(t, 1, exec.runs)
	assert.Equal(t, 0, testutil.CollectAndCount(m.ActionCount))
}

func TestDispatchUnclassifiedErrorStillCounts(t *testing.T) {
	boom := errors.New("database unavailable")
	exec := &fakeExecutor{
		run: func(ctx context.Context, call *executor.ActionCall) (*executor.Result, error) {
			return nil, boom
		},
	}
	d, m := newTestDispatcher(t, exec, false)

	resp := d.Dispatch(context.Background(), []byte(`{"next_action":"action_db","tracker":{}}`))

	assert.Equal(t, 500, resp.Status)
	assert.ErrorIs(t, resp.Err, boom)
	assert.Equal(t, ErrorResponse{Error: "Internal Server Error"}, resp.Body)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionCount.WithLabelValues("action_db")))
}

func TestDispatchIncompatibleVersion(t *testing.T) {
	exec := &fakeExecutor{}
	d, m := newTestDispatcher(t, exec, true)

	resp := d.Dispatch(context.Background(), []byte(`{"next_action":"a","version":"2.8.0","tracker":{}}`))

	require.Equal(t, 400, resp.Status)
	body, ok := resp.Body.(VersionErrorResponse)
	require.True(t, ok)
	assert.Equal(t, "2.8.0", body.Version)
	assert.Equal(t, "3.10.0", body.ServerVersion)
	assert.NotEmpty(t, body.Error)

	assert.Zero(t, exec.runs)
	assert.Zero(t, exec.reloads)
	assert.Equal(t, 0, testutil.CollectAndCount(m.ActionCount))
}

func TestDispatchAcceptsMissingOrUnparseableVersion(t *testing.T) {
	for _, body := range []string{
		`{"next_action":"a","tracker":{}}`,
		`{"next_action":"a","version":"","tracker":{}}`,
		`{"next_action":"a","version":"latest","tracker":{}}`,
	} {
		d, _ := newTestDispatcher(t, &fakeExecutor{}, false)
		resp := d.Dispatch(context.Background(), []byte(body))
		assert.Equal(t, 200, resp.Status, body)
	}
}

func TestDispatchAutoReload(t *testing.T) {
	exec := &fakeExecutor{}
	d, _ := newTestDispatcher(t, exec, true)

	resp := d.Dispatch(context.Background(), []byte(`{"next_action":"a","tracker":{}}`))

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, []string{"reload", "run"}, exec.order)
}

func TestDispatchReloadFailure(t *testing.T) {
	exec := &fakeExecutor{reloadErr: errors.New("bad manifest")}
	d, m := newTestDispatcher(t, exec, true)

	resp := d.Dispatch(context.Background(), []byte(`{"next_action":"a","tracker":{}}`))

	assert.Equal(t, 500, resp.Status)
	assert.ErrorContains(t, resp.Err, "bad manifest")
	assert.Zero(t, exec.runs)
	assert.Equal(t, 0, testutil.CollectAndCount(m.ActionCount))
}

func TestDispatchConcurrentCounts(t *testing.T) {
	d, m := newTestDispatcher(t, &fakeExecutor{}, false)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), []byte(`{"next_action":"a","tracker":{}}`))
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(n), testutil.ToFloat64(m.ActionCount.WithLabelValues("a")))
}

func TestListActions(t *testing.T) {
	exec := &fakeExecutor{actions: []string{"action_a", "action_b"}}
	d, _ := newTestDispatcher(t, exec, false)

	actions, err := d.ListActions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ActionInfo{{Name: "action_a"}, {Name: "action_b"}}, actions)
	assert.Zero(t, exec.reloads)
}

func TestListActionsEmpty(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeExecutor{}, false)

	actions, err := d.ListActions(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, bodyJSON(t, actions))
}

func TestListActionsReloads(t *testing.T) {
	exec := &fakeExecutor{actions: []string{"a"}}
	d, _ := newTestDispatcher(t, exec, true)

	_, err := d.ListActions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exec.reloads)

	exec.reloadErr = errors.New("boom")
	_, err = d.ListActions(context.Background())
	assert.Error(t, err)
}

type auditRecord struct {
	action, sender, status string
	code                   any
}

type fakeAuditor struct {
	mu      sync.Mutex
	records []auditRecord
}

func (f *fakeAuditor) RecordDispatch(ctx context.Context, actionName, senderID, status string, metadata map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, auditRecord{actionName, senderID, status, metadata["status_code"]})
}

func TestDispatchAudit(t *testing.T) {
	exec := &fakeExecutor{
		run: func(ctx context.Context, call *executor.ActionCall) (*executor.Result, error) {
			switch call.NextAction {
			case "action_reject":
				return nil, &executor.RejectionError{ActionName: call.NextAction, Message: "no"}
			case "action_missing":
				return nil, &executor.NotFoundError{ActionName: call.NextAction, Message: "missing"}
			case "action_fail":
				return nil, errors.New("boom")
			}
			return &executor.Result{Events: []executor.Event{}}, nil
		},
	}
	versions, err := NewVersionChecker("3.10.0", zerolog.Nop())
	require.NoError(t, err)

	auditor := &fakeAuditor{}
	d, err := NewDispatcher(DispatcherConfig{
		Executor: exec,
		Versions: versions,
		Auditor:  auditor,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	for _, body := range []string{
		`{"next_action":"action_ok","sender_id":"u1"}`,
		`{"next_action":"action_reject"}`,
		`{"next_action":"action_missing"}`,
		`{"next_action":"action_fail"}`,
		`{"next_action":"action_ok","version":"1.0.0"}`,
		`not json`,
	} {
		d.Dispatch(context.Background(), []byte(body))
	}

	assert.Equal(t, []auditRecord{
		{"action_ok", "u1", "success", 200},
		{"action_reject", "", "rejected", 400},
		{"action_missing", "", "not_found", 404},
		{"action_fail", "", "error", 500},
		{"action_ok", "", "version_mismatch", 400},
	}, auditor.records)
}
