package envelope

import (
	"encoding/json"
	"encoding/xml"
	"regexp"
	"time"

	"github.com/chris-alexander-pop/go-service-queue/pkg/errors"
)

// collapseSlashes turns any run of consecutive '/' into a single '/'.
var collapseSlashes = regexp.MustCompile(`/+`)

// ObjectKey derives the deterministic object-store key for a message:
// {bucketPrefix}/{endpointName}/{YYYY}/{MM}/{DD}/{messageID}, with
// consecutive slashes collapsed.
func ObjectKey(bucketPrefix, endpointName, messageID string, at time.Time, format Format) string {
	at = at.UTC()
	raw := bucketPrefix + "/" + endpointName + "/" +
		at.Format("2006/01/02") + "/" + messageID + format.extension()
	return collapseSlashes.ReplaceAllString(raw, "/")
}

// inlineFrame is the wire shape shared by the PLAIN, ENCRYPTED, STORED, and
// STORED+ENCRYPTED broker frames: the Payload field carries either the raw
// user payload T, an object key, or an opaque encrypted hash string — all
// three are just instantiations of T.
type inlineFrame[T any] struct {
	XMLName   xml.Name   `json:"-" xml:"message"`
	ID        string     `json:"id" xml:"id"`
	Created   time.Time  `json:"created" xml:"created"`
	Published *time.Time `json:"published,omitempty" xml:"published,omitempty"`
	Consumed  *time.Time `json:"consumed,omitempty" xml:"consumed,omitempty"`
	Rejected  *time.Time `json:"rejected,omitempty" xml:"rejected,omitempty"`
	Payload   T          `json:"payload" xml:"payload"`
}

// EncodeInline serializes msg as the broker-bound frame in the given
// format. T may be the user payload type (PLAIN), or string (the object
// key of a STORED reference, or the opaque hash of an ENCRYPTED/
// STORED+ENCRYPTED variant).
func EncodeInline[T any](msg *Message[T], format Format) ([]byte, error) {
	f := inlineFrame[T]{
		ID:        msg.ID,
		Created:   msg.Created,
		Published: msg.Published,
		Consumed:  msg.Consumed,
		Rejected:  msg.Rejected,
		Payload:   msg.Payload,
	}
	return marshal(f, format)
}

// DecodeInline parses a broker frame previously produced by EncodeInline.
func DecodeInline[T any](data []byte, format Format) (*Message[T], error) {
	var f inlineFrame[T]
	if err := unmarshal(data, format, &f); err != nil {
		return nil, errors.InvalidArgument("failed to decode message frame", err)
	}
	return &Message[T]{
		ID:        f.ID,
		Created:   f.Created,
		Published: f.Published,
		Consumed:  f.Consumed,
		Rejected:  f.Rejected,
		Payload:   f.Payload,
	}, nil
}

// storedFrame is the wire/at-rest shape of a StoredMessage document.
type storedFrame[T any] struct {
	XMLName        xml.Name   `json:"-" xml:"storedMessage"`
	ID             string     `json:"id" xml:"id"`
	Created        time.Time  `json:"created" xml:"created"`
	Published      *time.Time `json:"published,omitempty" xml:"published,omitempty"`
	Consumed       *time.Time `json:"consumed,omitempty" xml:"consumed,omitempty"`
	Rejected       *time.Time `json:"rejected,omitempty" xml:"rejected,omitempty"`
	Acknowledged   *time.Time `json:"acknowledged,omitempty" xml:"acknowledged,omitempty"`
	Payload        string     `json:"payload" xml:"payload"`
	Envelope       T          `json:"envelope" xml:"envelope"`
	RejectedReason *Reason    `json:"rejectedReason,omitempty" xml:"rejectedReason,omitempty"`
}

// EncodeStored serializes a StoredMessage document in the given format.
func EncodeStored[T any](doc *StoredMessage[T], format Format) ([]byte, error) {
	f := storedFrame[T]{
		ID:             doc.ID,
		Created:        doc.Created,
		Published:      doc.Published,
		Consumed:       doc.Consumed,
		Rejected:       doc.Rejected,
		Acknowledged:   doc.Acknowledged,
		Payload:        doc.Payload,
		Envelope:       doc.Envelope,
		RejectedReason: doc.RejectedReason,
	}
	return marshal(f, format)
}

// DecodeStored parses a stored document previously produced by EncodeStored.
func DecodeStored[T any](data []byte, format Format) (*StoredMessage[T], error) {
	var f storedFrame[T]
	if err := unmarshal(data, format, &f); err != nil {
		return nil, errors.InvalidArgument("failed to decode stored document", err)
	}
	return &StoredMessage[T]{
		ID:             f.ID,
		Created:        f.Created,
		Published:      f.Published,
		Consumed:       f.Consumed,
		Rejected:       f.Rejected,
		Acknowledged:   f.Acknowledged,
		Payload:        f.Payload,
		Envelope:       f.Envelope,
		RejectedReason: f.RejectedReason,
	}, nil
}

func marshal(v interface{}, format Format) ([]byte, error) {
	if format == FormatXML {
		return xml.Marshal(v)
	}
	return json.Marshal(v)
}

func unmarshal(data []byte, format Format, v interface{}) error {
	if format == FormatXML {
		return xml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}
