package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/docchat/internal/domain"
	domconv "github.com/kailas-cloud/docchat/internal/domain/conversation"
	"github.com/kailas-cloud/docchat/internal/domain/prompt"
	"github.com/kailas-cloud/docchat/internal/metrics"
)

func ask(t *testing.T, h *harness, req Request) (Result, *recordingSink, error) {
	t.Helper()
	sink := &recordingSink{}
	res, err := h.svc.Ask(authed(), &req, sink)
	return res, sink, err
}

func TestAsk_EnglishSingleInvocation(t *testing.T) {
	h := newHarness(t, scripted{chunks: []string{"The warranty ", "is 2 years", "."}})

	res, sink, err := ask(t, h, Request{DocumentID: testDocID, Message: "What is the warranty?", Language: "english"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if h.model.invocations() != 1 {
		t.Fatalf("model invocations = %d, want 1", h.model.invocations())
	}
	p := h.model.prompts[0]
	if !strings.Contains(p.Text(), "The warranty period is 2 years.\nPage Number: 4") {
		t.Errorf("prompt misses the passage:\n%s", p.Text())
	}
	if last := p[len(p)-1]; last.Role != prompt.RoleUser || last.Content != "What is the warranty?" {
		t.Errorf("last prompt message = %+v", last)
	}

	if got := sink.text(); got != "The warranty is 2 years." {
		t.Errorf("streamed = %q", got)
	}
	if len(sink.chunks) != 3 {
		t.Errorf("chunks = %d, want 3 (no coalescing)", len(sink.chunks))
	}

	assistant := h.conv.byRole(domconv.RoleAssistant)
	if len(assistant) != 1 {
		t.Fatalf("assistant turns = %d, want 1", len(assistant))
	}
	if assistant[0].Text() != sink.text() {
		t.Errorf("persisted %q, streamed %q", assistant[0].Text(), sink.text())
	}
	if !res.Persisted || res.Text != sink.text() {
		t.Errorf("result = %+v", res)
	}
}

func TestAsk_DefaultLanguageIsCaseInsensitive(t *testing.T) {
	for _, lang := range []string{"English", "ENGLISH", " english ", ""} {
		t.Run(lang, func(t *testing.T) {
			h := newHarness(t)
			if _, _, err := ask(t, h, Request{DocumentID: testDocID, Message: "q", Language: lang}); err != nil {
				t.Fatalf("Ask: %v", err)
			}
			if h.model.invocations() != 1 {
				t.Errorf("invocations = %d, want 1", h.model.invocations())
			}
		})
	}
}

func TestAsk_FrenchTranslatesAnswer(t *testing.T) {
	h := newHarness(t,
		scripted{chunks: []string{"The warranty ", "is 2 years."}},
		scripted{chunks: []string{"La garantie ", "est de 2 ans."}},
	)

	res, sink, err := ask(t, h, Request{DocumentID: testDocID, Message: "What is the warranty?", Language: "French"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if h.model.invocations() != 2 {
		t.Fatalf("invocations = %d, want 2", h.model.invocations())
	}
	translation := h.model.prompts[1]
	if !strings.Contains(translation.Text(), "Text to translate: The warranty is 2 years.") {
		t.Errorf("translation input is not the full answer:\n%s", translation.Text())
	}
	if !strings.Contains(translation.Text(), "specialized in french") {
		t.Errorf("translation prompt misses the language:\n%s", translation.Text())
	}

	if got := sink.text(); got != "La garantie est de 2 ans." {
		t.Errorf("caller saw %q, want only the translation", got)
	}
	if res.Text != sink.text() {
		t.Errorf("result text %q != streamed %q", res.Text, sink.text())
	}
	assistant := h.conv.byRole(domconv.RoleAssistant)
	if len(assistant) != 1 || assistant[0].Text() != "La garantie est de 2 ans." {
		t.Errorf("assistant turns = %+v", assistant)
	}
}

func TestAsk_TranslationFailureIsAnError(t *testing.T) {
	h := newHarness(t,
		scripted{chunks: []string{"The warranty is 2 years."}},
		scripted{openErr: errors.New("provider down")},
	)

	_, sink, err := ask(t, h, Request{DocumentID: testDocID, Message: "q", Language: "spanish"})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	var se *domain.StageError
	if !errors.As(err, &se) || se.Stage != StageTranslate {
		t.Errorf("expected translate stage error, got %v", err)
	}
	if len(sink.chunks) != 0 {
		t.Errorf("untranslated answer leaked to caller: %q", sink.text())
	}
	if n := len(h.conv.byRole(domconv.RoleAssistant)); n != 0 {
		t.Errorf("assistant turns = %d, want 0", n)
	}
}

func TestAsk_NotOwnedDocumentTouchesNothing(t *testing.T) {
	h := newHarness(t)

	_, sink, err := ask(t, h, Request{DocumentID: "doc-X", Message: "q", Language: "english"})
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if h.retriever.calls != 0 || h.model.invocations() != 0 || h.conv.appends != 0 || len(h.conv.limits) != 0 {
		t.Errorf("side effects: retrieval=%d model=%d appends=%d history=%d",
			h.retriever.calls, h.model.invocations(), h.conv.appends, len(h.conv.limits))
	}
	if len(sink.chunks) != 0 {
		t.Error("nothing must be streamed")
	}
}

func TestAsk_MissingDocument(t *testing.T) {
	h := newHarness(t)

	_, _, err := ask(t, h, Request{DocumentID: "nope", Message: "q"})
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if h.conv.appends != 0 {
		t.Error("no turn may be recorded")
	}
}

func TestAsk_UserTurnBeforeAssistantTurn(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := newHarness(t)
	h.svc.WithClock(domconv.NewClock(func() time.Time { return fixed }))

	res, _, err := ask(t, h, Request{DocumentID: testDocID, Message: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	users := h.conv.byRole(domconv.RoleUser)
	assistants := h.conv.byRole(domconv.RoleAssistant)
	if len(users) != 1 || len(assistants) != 1 {
		t.Fatalf("turns: users=%d assistants=%d", len(users), len(assistants))
	}
	if !users[0].CreatedAt().Before(assistants[0].CreatedAt()) {
		t.Errorf("user %v not before assistant %v", users[0].CreatedAt(), assistants[0].CreatedAt())
	}
	if res.UserTurnID != users[0].ID() || res.AssistantTurnID != assistants[0].ID() {
		t.Errorf("result ids = %+v", res)
	}
	if h.conv.turns[0].Role() != domconv.RoleUser {
		t.Error("user turn must be written first")
	}
}

func TestAsk_RetrievalScopedToDocument(t *testing.T) {
	h := newHarness(t)

	if _, _, err := ask(t, h, Request{DocumentID: testDocID, Message: "How much is premium?"}); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if len(h.retriever.docIDs) != 1 || h.retriever.docIDs[0] != testDocID {
		t.Errorf("retrieval scopes = %v", h.retriever.docIDs)
	}
	if h.retriever.lastTopK != 3 {
		t.Errorf("top k = %d", h.retriever.lastTopK)
	}
	text := h.model.prompts[0].Text()
	if strings.Contains(text, "premium plan") {
		t.Errorf("passage of another document leaked into the prompt:\n%s", text)
	}
}

func TestAsk_HistoryBoundedAndChronological(t *testing.T) {
	h := newHarness(t)
	base := time.Now().Add(-time.Hour)
	for i := range 10 {
		role := domconv.RoleUser
		if i%2 == 1 {
			role = domconv.RoleAssistant
		}
		turn, err := domconv.New(testDocID, testUser, role, "turn-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		h.conv.turns = append(h.conv.turns, turn)
	}

	if _, _, err := ask(t, h, Request{DocumentID: testDocID, Message: "newest question"}); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	system := h.model.prompts[0][0].Content
	history := system[strings.Index(system, "Previous Chat:"):]
	for _, old := range []string{"turn-a", "turn-b", "turn-c", "turn-d"} {
		if strings.Contains(history, old) {
			t.Errorf("history beyond the bound: %q present", old)
		}
	}
	if strings.Contains(history, "newest question") {
		t.Error("current question repeated in history")
	}
	want := []string{"User: turn-e", "Assistant: turn-f", "User: turn-g", "Assistant: turn-h", "User: turn-i", "Assistant: turn-j"}
	pos := -1
	for _, w := range want {
		i := strings.Index(history, w)
		if i <= pos {
			t.Fatalf("history out of order at %q:\n%s", w, history)
		}
		pos = i
	}
}

func TestBoundHistory(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var turns []domconv.Turn
	for i := range 4 {
		turns = append(turns, domconv.Reconstruct(
			string(rune('a'+i)), "d", "u", domconv.RoleUser, "t", base.Add(time.Duration(i)*time.Second)))
	}

	got := boundHistory(turns, "d", 2)
	if len(got) != 2 || got[0].ID() != "b" || got[1].ID() != "c" {
		t.Errorf("boundHistory = %v", ids(got))
	}
	if got := boundHistory(turns, "zz", 3); len(got) != 3 || got[0].ID() != "b" {
		t.Errorf("boundHistory = %v", ids(got))
	}
}

func ids(turns []domconv.Turn) []string {
	out := make([]string, len(turns))
	for i := range turns {
		out[i] = turns[i].ID()
	}
	return out
}

func TestAsk_ModelFailsBeforeFirstChunk(t *testing.T) {
	h := newHarness(t, scripted{openErr: errors.New("503")})

	_, sink, err := ask(t, h, Request{DocumentID: testDocID, Message: "q"})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if len(sink.chunks) != 0 {
		t.Error("nothing may be streamed")
	}
	if n := len(h.conv.byRole(domconv.RoleAssistant)); n != 0 {
		t.Errorf("assistant turns = %d, want 0", n)
	}
	if n := len(h.conv.byRole(domconv.RoleUser)); n != 1 {
		t.Errorf("user turn must stay recorded, got %d", n)
	}
}

func TestAsk_MidStreamFailureNotPersisted(t *testing.T) {
	h := newHarness(t, scripted{chunks: []string{"partial "}, recvErr: errors.New("connection reset")})

	_, sink, err := ask(t, h, Request{DocumentID: testDocID, Message: "q"})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if sink.text() != "partial " {
		t.Errorf("streamed = %q", sink.text())
	}
	if n := len(h.conv.byRole(domconv.RoleAssistant)); n != 0 {
		t.Errorf("partial answer persisted: %d turns", n)
	}
}

func TestAsk_EmptyChunksSkipped(t *testing.T) {
	h := newHarness(t, scripted{chunks: []string{"", "a", "", "b"}})

	_, sink, err := ask(t, h, Request{DocumentID: testDocID, Message: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(sink.chunks) != 2 || sink.text() != "ab" {
		t.Errorf("chunks = %q", sink.chunks)
	}
}

func TestAsk_CallerGoneStopsGeneration(t *testing.T) {
	h := newHarness(t, scripted{chunks: []string{"a", "b", "c"}})
	sink := &recordingSink{err: errors.New("broken pipe")}

	_, err := h.svc.Ask(authed(), &Request{DocumentID: testDocID, Message: "q"}, sink)
	if !errors.Is(err, ErrCallerGone) {
		t.Fatalf("expected ErrCallerGone, got %v", err)
	}
	if n := len(h.conv.byRole(domconv.RoleAssistant)); n != 0 {
		t.Errorf("assistant turns = %d, want 0", n)
	}
}

func TestAsk_DeadlineIsGenerationFailure(t *testing.T) {
	h := newHarness(t, scripted{chunks: []string{"slow"}, block: true})
	h.svc.cfg.RequestTimeout = 50 * time.Millisecond

	_, sink, err := ask(t, h, Request{DocumentID: testDocID, Message: "q"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !errors.Is(err, domain.ErrGeneration) {
		t.Errorf("expected ErrGeneration, got %v", err)
	}
	if sink.text() != "slow" {
		t.Errorf("streamed = %q", sink.text())
	}
	if n := len(h.conv.byRole(domconv.RoleAssistant)); n != 0 {
		t.Errorf("assistant turns = %d, want 0", n)
	}
}

func TestAsk_UserTurnFailureFailsClosed(t *testing.T) {
	h := newHarness(t)
	h.conv.appendErr = func(*domconv.Turn) error { return errors.New("redis down") }

	_, _, err := ask(t, h, Request{DocumentID: testDocID, Message: "q"})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if h.retriever.calls != 0 || h.model.invocations() != 0 {
		t.Error("no retrieval or generation after a failed user turn write")
	}
}

func TestAsk_AssistantTurnFailureFailsOpen(t *testing.T) {
	h := newHarness(t, scripted{chunks: []string{"answer"}})
	h.conv.appendErr = func(t *domconv.Turn) error {
		if t.Role() == domconv.RoleAssistant {
			return errors.New("redis down")
		}
		return nil
	}
	before := testutil.ToFloat64(metrics.AssistantPersistFailuresTotal)

	res, sink, err := ask(t, h, Request{DocumentID: testDocID, Message: "q"})
	if err != nil {
		t.Fatalf("delivered answer must not turn into an error: %v", err)
	}
	if sink.text() != "answer" || res.Persisted {
		t.Errorf("result = %+v, streamed %q", res, sink.text())
	}
	if got := testutil.ToFloat64(metrics.AssistantPersistFailuresTotal); got != before+1 {
		t.Errorf("assistant_persist_failures_total = %v, want %v", got, before+1)
	}
}

func TestAsk_AssistantTurnIgnoresCallerCancellation(t *testing.T) {
	h := newHarness(t, scripted{chunks: []string{"done"}})
	ctx, cancel := context.WithCancel(authed())
	defer cancel()
	// The caller goes away right after the last chunk was relayed.
	h.model.script[0].onClose = cancel

	res, err := h.svc.Ask(ctx, &Request{DocumentID: testDocID, Message: "q"}, &recordingSink{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !res.Persisted {
		t.Fatal("completed answer must be persisted on a detached context")
	}
	if n := len(h.conv.byRole(domconv.RoleAssistant)); n != 1 {
		t.Errorf("assistant turns = %d, want 1", n)
	}
}

func TestAsk_RetrievalFailureStopsBeforeModel(t *testing.T) {
	h := newHarness(t)
	h.retriever.err = errors.New("index unavailable")

	_, _, err := ask(t, h, Request{DocumentID: testDocID, Message: "q"})
	if !errors.Is(err, domain.ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
	if h.model.invocations() != 0 {
		t.Error("model must not be called without context")
	}
}

func TestAsk_HistoryFailure(t *testing.T) {
	h := newHarness(t)
	h.conv.recentErr = errors.New("timeout")

	_, _, err := ask(t, h, Request{DocumentID: testDocID, Message: "q"})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if h.model.invocations() != 0 {
		t.Error("model must not be called")
	}
}

func TestAsk_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"empty document", Request{Message: "q"}, "documentId"},
		{"bad document id", Request{DocumentID: "a/b", Message: "q"}, "documentId"},
		{"empty message", Request{DocumentID: testDocID, Message: "  "}, "message"},
		{"long message", Request{DocumentID: testDocID, Message: strings.Repeat("x", MaxMessageLength+1)}, "message"},
		{"unknown language", Request{DocumentID: testDocID, Message: "q", Language: "klingon"}, "language"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, _, err := ask(t, h, tc.req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
			if h.docs.calls != 0 || h.conv.appends != 0 {
				t.Error("validation must precede any lookup")
			}
		})
	}
}

func TestAsk_RequiresPrincipal(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Ask(context.Background(), &Request{DocumentID: testDocID, Message: "q"}, &recordingSink{})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	t.Run("no principal", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.svc.Authorize(context.Background())
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if len(h.limiter.users) != 0 {
			t.Error("limiter must not be consulted without a principal")
		}
	})

	t.Run("allowed", func(t *testing.T) {
		h := newHarness(t)
		p, d, err := h.svc.Authorize(authed())
		if err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		if p.UserID != testUser || d.Remaining != 9 {
			t.Errorf("principal %+v decision %+v", p, d)
		}
	})

	t.Run("limited", func(t *testing.T) {
		h := newHarness(t)
		h.limiter.decision = domain.RateDecision{Allowed: false, Remaining: 0}
		_, d, err := h.svc.Authorize(authed())
		if !errors.Is(err, domain.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if d.Remaining != 0 {
			t.Errorf("remaining = %d", d.Remaining)
		}
	})

	t.Run("limiter failure", func(t *testing.T) {
		h := newHarness(t)
		h.limiter.err = errors.New("redis down")
		_, _, err := h.svc.Authorize(authed())
		if err == nil || errors.Is(err, domain.ErrRateLimited) {
			t.Fatalf("expected internal error, got %v", err)
		}
	})

	t.Run("no limiter", func(t *testing.T) {
		svc := New(&fakeDocs{}, &memConversation{}, &fakeRetriever{}, &fakeModel{}, nil, Config{})
		_, d, err := svc.Authorize(authed())
		if err != nil || !d.Allowed {
			t.Fatalf("decision %+v, err %v", d, err)
		}
	})
}

func TestPlanStages(t *testing.T) {
	answer := prompt.Prompt{{Role: prompt.RoleUser, Content: "q"}}

	if got := planStages(answer, "english", "english"); len(got) != 1 || got[0].Name != StageAnswer {
		t.Errorf("english plan = %v", got)
	}
	got := planStages(answer, "german", "english")
	if len(got) != 2 || got[1].Name != StageTranslate {
		t.Fatalf("german plan = %v", got)
	}
	if p := got[1].Build("hello"); !strings.Contains(p.Text(), "hello") || !strings.Contains(p.Text(), "german") {
		t.Errorf("translation prompt = %q", p.Text())
	}
}
