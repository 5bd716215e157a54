package validation

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/loomlabs/loom/pkg/errors"
)

// scriptedRequester returns canned responses in order and records every
// instruction it receives. The first failures calls error before any
// response is served; a non-nil err makes every call fail.
type scriptedRequester struct {
	responses    []string
	instructions []string
	failures     int
	err          error
}

func (r *scriptedRequester) request(_ context.Context, instruction string) (string, error) {
	r.instructions = append(r.instructions, instruction)
	if r.err != nil {
		return "", r.err
	}
	if r.failures > 0 {
		r.failures--
		return "", fmt.Errorf("model unavailable")
	}
	if len(r.responses) == 0 {
		return "", fmt.Errorf("no scripted response left")
	}
	next := r.responses[0]
	r.responses = r.responses[1:]
	return next, nil
}

func TestLoopValidFirstAttempt(t *testing.T) {
	loop, err := NewLoop(invoiceSchema(), 2, (&scriptedRequester{}).request)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	result, err := loop.Run(context.Background(), `{"amount": 10, "currency": "USD"}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != StateValid || len(result.Attempts) != 1 {
		t.Fatalf("expected Valid with history 1, got %s / %d", result.State, len(result.Attempts))
	}
	if result.SessionID == "" {
		t.Fatalf("session id missing")
	}
	if result.Value == nil {
		t.Fatalf("parsed value missing")
	}
}

func TestLoopCorrectsOnSecondAttempt(t *testing.T) {
	requester := &scriptedRequester{responses: []string{`{"amount": 12.5, "currency": "USD"}`}}
	loop, err := NewLoop(invoiceSchema(), 2, requester.request)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}

	// First output supplies amount as a string.
	result, err := loop.Run(context.Background(), `{"amount": "12.50", "currency": "USD"}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != StateValid || len(result.Attempts) != 2 {
		t.Fatalf("expected Valid with history 2, got %s / %d", result.State, len(result.Attempts))
	}
	if result.Attempts[0].Valid || !result.Attempts[1].Valid {
		t.Fatalf("attempt outcomes wrong: %+v", result.Attempts)
	}

	// The correction instruction names the failing field and carries the
	// schema and the rejected output.
	if len(requester.instructions) != 1 {
		t.Fatalf("expected exactly one correction round-trip, got %d", len(requester.instructions))
	}
	instruction := requester.instructions[0]
	for _, want := range []string{"$.amount", "number", "12.50", "VALIDATION ERRORS", "EXPECTED SCHEMA"} {
		if !strings.Contains(instruction, want) {
			t.Fatalf("correction instruction missing %q:\n%s", want, instruction)
		}
	}
}

func TestLoopEnumeratesAllErrorsInCorrection(t *testing.T) {
	requester := &scriptedRequester{responses: []string{`{"amount": 1, "currency": "USD"}`}}
	loop, _ := NewLoop(invoiceSchema(), 1, requester.request)

	if _, err := loop.Run(context.Background(), `{"amount": -3, "currency": "GBP", "paid": "yes"}`); err != nil {
		t.Fatalf("run: %v", err)
	}
	instruction := requester.instructions[0]
	for _, path := range []string{"$.amount", "$.currency", "$.paid"} {
		if !strings.Contains(instruction, path) {
			t.Fatalf("instruction omits %s:\n%s", path, instruction)
		}
	}
}

func TestLoopZeroRetriesSingleAttempt(t *testing.T) {
	loop, err := NewLoop(invoiceSchema(), 0, nil)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	result, err := loop.Run(context.Background(), `{"amount": "bad"}`)
	if !errors.HasCode(err, errors.CodeRetriesExhausted) {
		t.Fatalf("expected RETRIES_EXHAUSTED, got %v", err)
	}
	if result.State != StateExhausted || len(result.Attempts) != 1 {
		t.Fatalf("expected Exhausted with exactly one attempt, got %s / %d",
			result.State, len(result.Attempts))
	}
}

func TestLoopExhaustionKeepsFullHistory(t *testing.T) {
	// Every corrected output is still invalid.
	requester := &scriptedRequester{responses: []string{
		`{"amount": "still bad", "currency": "USD"}`,
		`{"amount": true, "currency": "USD"}`,
	}}
	loop, _ := NewLoop(invoiceSchema(), 2, requester.request)

	result, err := loop.Run(context.Background(), `{"currency": "USD"}`)
	if !errors.HasCode(err, errors.CodeRetriesExhausted) {
		t.Fatalf("expected RETRIES_EXHAUSTED, got %v", err)
	}
	if result.State != StateExhausted || len(result.Attempts) != 3 {
		t.Fatalf("expected Exhausted with history 3, got %s / %d", result.State, len(result.Attempts))
	}
	// Every attempt's violations survive, not just the last round's.
	if all := result.Errors(); len(all) != 3 {
		t.Fatalf("expected 3 accumulated violations, got %v", all)
	}
	for i, a := range result.Attempts {
		if a.Index != i || a.Valid {
			t.Fatalf("attempt %d malformed: %+v", i, a)
		}
	}
}

func TestLoopRequesterFailureConsumesRetries(t *testing.T) {
	requester := &scriptedRequester{err: fmt.Errorf("model unavailable")}
	loop, _ := NewLoop(invoiceSchema(), 2, requester.request)

	result, err := loop.Run(context.Background(), `{"amount": "bad"}`)
	if !errors.HasCode(err, errors.CodeRetriesExhausted) {
		t.Fatalf("expected RETRIES_EXHAUSTED, got %v", err)
	}
	if result.State != StateExhausted || len(result.Attempts) != 3 {
		t.Fatalf("expected Exhausted with history 3, got %s / %d", result.State, len(result.Attempts))
	}
	// Every failed round-trip is its own history entry carrying the cause.
	for i, a := range result.Attempts[1:] {
		if a.Valid || len(a.Errors) != 1 || !strings.Contains(a.Errors[0].Message, "model unavailable") {
			t.Fatalf("request-failure attempt %d malformed: %+v", i+1, a)
		}
	}
}

func TestLoopRecoversFromTransientRequesterFailure(t *testing.T) {
	requester := &scriptedRequester{
		failures:  1,
		responses: []string{`{"amount": 12.5, "currency": "USD"}`},
	}
	loop, _ := NewLoop(invoiceSchema(), 3, requester.request)

	result, err := loop.Run(context.Background(), `{"amount": "bad"}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.State != StateValid || len(result.Attempts) != 3 {
		t.Fatalf("expected Valid with history 3, got %s / %d", result.State, len(result.Attempts))
	}
	if result.Attempts[0].Valid || result.Attempts[1].Valid || !result.Attempts[2].Valid {
		t.Fatalf("attempt outcomes wrong: %+v", result.Attempts)
	}
	// The failed round-trip is re-requested with the same instruction.
	if len(requester.instructions) != 2 || requester.instructions[0] != requester.instructions[1] {
		t.Fatalf("expected the same correction to be re-requested, got %d call(s)", len(requester.instructions))
	}
}

func TestLoopRequesterTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	requester := func(ctx context.Context, _ string) (string, error) {
		cancel()
		return "", ctx.Err()
	}
	loop, _ := NewLoop(invoiceSchema(), 1, requester)

	result, err := loop.Run(ctx, `{"amount": "bad"}`)
	if !errors.HasCode(err, errors.CodeRetriesExhausted) {
		t.Fatalf("expected RETRIES_EXHAUSTED, got %v", err)
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected the requester's error as cause, got %v", err)
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("expected the failed round-trip in history, got %d", len(result.Attempts))
	}
}

func TestNewLoopArguments(t *testing.T) {
	if _, err := NewLoop(nil, 1, nil); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("nil schema accepted: %v", err)
	}
	if _, err := NewLoop(invoiceSchema(), -1, nil); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("negative retries accepted: %v", err)
	}
	if _, err := NewLoop(invoiceSchema(), 1, nil); !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("retries without requester accepted: %v", err)
	}
}
