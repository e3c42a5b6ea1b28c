package envelope_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope"
	"github.com/chris-alexander-pop/go-service-queue/pkg/test"
)

type ReasonSuite struct {
	test.Suite
}

func TestReasonSuite(t *testing.T) {
	test.Run(t, new(ReasonSuite))
}

func (s *ReasonSuite) TestFromErrorCapturesWrappedChain() {
	root := errors.New("connection refused")
	wrapped := fmt.Errorf("failed to dial broker: %w", root)

	reason := envelope.FromError(wrapped, "")
	s.Require().NotNil(reason)
	s.Equal(wrapped.Error(), reason.Message)
	s.Require().NotNil(reason.Inner)
	s.Equal(root.Error(), reason.Inner.Message)
	s.Nil(reason.Inner.Inner)
}

func (s *ReasonSuite) TestParseTraceExtractsFrames() {
	raw := "at orders.Publish in /app/orders.go:line 42\nnot a frame line\nat orders.dial"
	frames := envelope.ParseTrace(raw)
	s.Require().Len(frames, 2)
	s.Equal("orders.Publish", frames[0].Method)
	s.Equal("/app/orders.go", frames[0].File)
	s.Equal(42, frames[0].Line)
	s.Equal("orders.dial", frames[1].Method)
	s.Zero(frames[1].Line)
}

func (s *ReasonSuite) TestClearTraceIsRecursiveAndNilSafe() {
	var nilReason *envelope.Reason
	nilReason.ClearTrace() // must not panic

	reason := &envelope.Reason{
		Message: "outer",
		Trace:   envelope.ParseTrace("at outer.fn"),
		Inner: &envelope.Reason{
			Message: "inner",
			Trace:   envelope.ParseTrace("at inner.fn"),
		},
	}
	reason.ClearTrace()
	s.Nil(reason.Trace)
	s.Nil(reason.Inner.Trace)
}

func (s *ReasonSuite) TestCaptureTraceProducesParsableFrames() {
	frames := envelope.ParseTrace(envelope.CaptureTrace(0))
	s.Require().NotEmpty(frames)
	s.NotEmpty(frames[0].Method)
	s.NotEmpty(frames[0].File)
	s.Positive(frames[0].Line)
}

func (s *ReasonSuite) TestFromPanicNonErrorValue() {
	reason := envelope.FromPanic("boom", "")
	s.Equal("boom", reason.Message)
	s.Equal("string", reason.Type)
}
