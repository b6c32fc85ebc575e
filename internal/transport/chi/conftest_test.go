package chi

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/docchat/internal/domain"
	chatuc "github.com/kailas-cloud/docchat/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/docchat/internal/usecase/health"
)

const testToken = "tok-alice"

type mockChat struct {
	authorizeFn func(ctx context.Context) (domain.Principal, domain.RateDecision, error)
	askFn       func(ctx context.Context, req *chatuc.Request, sink chatuc.Sink) (chatuc.Result, error)
	askCalls    int
	lastReq     *chatuc.Request
}

// Authorize defaults to the real rule: a principal is required, the window has room.
func (m *mockChat) Authorize(ctx context.Context) (domain.Principal, domain.RateDecision, error) {
	if m.authorizeFn != nil {
		return m.authorizeFn(ctx)
	}
	p, ok := domain.PrincipalFromContext(ctx)
	if !ok {
		return domain.Principal{}, domain.RateDecision{}, domain.ErrUnauthorized
	}
	return p, domain.RateDecision{Allowed: true, Remaining: 4, ResetAt: farFuture()}, nil
}

func (m *mockChat) Ask(ctx context.Context, req *chatuc.Request, sink chatuc.Sink) (chatuc.Result, error) {
	m.askCalls++
	m.lastReq = req
	if m.askFn != nil {
		return m.askFn(ctx, req, sink)
	}
	return chatuc.Result{}, nil
}

type mockTextOps struct {
	applyFn func(ctx context.Context, text, option string) (string, error)
}

func (m *mockTextOps) Apply(ctx context.Context, text, option string) (string, error) {
	if m.applyFn != nil {
		return m.applyFn(ctx, text, option)
	}
	return "rewritten", nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type testEnv struct {
	router  chi.Router
	chat    *mockChat
	textops *mockTextOps
	health  *mockHealth
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		chat:    &mockChat{},
		textops: &mockTextOps{},
		health:  &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
	}
	r := chi.NewRouter()
	r.Use(BearerAuthMiddleware(map[string]string{testToken: "alice"}))
	NewServer(env.chat, env.textops, env.health).Register(r)
	env.router = r
	return env
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	for i := 0; i+1 < len(headers); i += 2 {
		if headers[i+1] == "" {
			req.Header.Del(headers[i])
			continue
		}
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// streamChunks is an Ask implementation writing chunks then returning err.
func streamChunks(err error, chunks ...string) func(context.Context, *chatuc.Request, chatuc.Sink) (chatuc.Result, error) {
	return func(_ context.Context, _ *chatuc.Request, sink chatuc.Sink) (chatuc.Result, error) {
		for _, c := range chunks {
			if werr := sink.Write(c); werr != nil {
				return chatuc.Result{}, werr
			}
		}
		if err != nil {
			return chatuc.Result{}, err
		}
		return chatuc.Result{Text: strings.Join(chunks, ""), AssistantTurnID: "turn-2", Persisted: true}, nil
	}
}

func farFuture() time.Time { return time.Now().Add(time.Minute) }
