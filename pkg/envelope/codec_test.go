package envelope_test

import (
	"testing"
	"time"

	"github.com/chris-alexander-pop/go-service-queue/pkg/envelope"
	"github.com/chris-alexander-pop/go-service-queue/pkg/test"
)

type CodecSuite struct {
	test.Suite
}

func TestCodecSuite(t *testing.T) {
	test.Run(t, new(CodecSuite))
}

func (s *CodecSuite) TestInlineJSONRoundTrip() {
	msg := &envelope.Message[order]{ID: "m-1", Created: time.Now().UTC(), Payload: order{ID: "o-1", Total: 10}}

	data, err := envelope.EncodeInline(msg, envelope.FormatJSON)
	s.Require().NoError(err)

	decoded, err := envelope.DecodeInline[order](data, envelope.FormatJSON)
	s.Require().NoError(err)
	s.Equal(msg.ID, decoded.ID)
	s.Equal(msg.Payload, decoded.Payload)
}

func (s *CodecSuite) TestInlineXMLRoundTrip() {
	msg := &envelope.Message[order]{ID: "m-2", Created: time.Now().UTC(), Payload: order{ID: "o-2", Total: 20}}

	data, err := envelope.EncodeInline(msg, envelope.FormatXML)
	s.Require().NoError(err)

	decoded, err := envelope.DecodeInline[order](data, envelope.FormatXML)
	s.Require().NoError(err)
	s.Equal(msg.ID, decoded.ID)
	s.Equal(msg.Payload, decoded.Payload)
}

func (s *CodecSuite) TestInlineStringPayload() {
	msg := &envelope.Message[string]{ID: "m-3", Created: time.Now().UTC(), Payload: "orders/2026/07/31/m-3.json"}

	data, err := envelope.EncodeInline(msg, envelope.FormatJSON)
	s.Require().NoError(err)

	decoded, err := envelope.DecodeInline[string](data, envelope.FormatJSON)
	s.Require().NoError(err)
	s.Equal(msg.Payload, decoded.Payload)
}

func (s *CodecSuite) TestStoredRoundTrip() {
	doc := &envelope.StoredMessage[order]{
		ID:       "m-4",
		Created:  time.Now().UTC(),
		Payload:  "orders/2026/07/31/m-4.json",
		Envelope: order{ID: "o-4", Total: 30},
	}

	data, err := envelope.EncodeStored(doc, envelope.FormatJSON)
	s.Require().NoError(err)

	decoded, err := envelope.DecodeStored[order](data, envelope.FormatJSON)
	s.Require().NoError(err)
	s.Equal(doc.Envelope, decoded.Envelope)
	s.Equal(doc.Payload, decoded.Payload)
}

func (s *CodecSuite) TestObjectKeyCollapsesSlashes() {
	at := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	key := envelope.ObjectKey("bucket/", "orders", "msg-1", at, envelope.FormatJSON)
	s.Equal("bucket/orders/2026/07/31/msg-1.json", key)
}
