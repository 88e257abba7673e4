package resource

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Document is the wire shape exchanged with a remote source: a primary
// "data" entry holding one resource or a sequence of them, plus an
// optional "included" sequence of side-loaded resources that are merged
// into the store alongside the primary data.
type Document struct {
	Data     []*Resource
	Single   bool // data was a single object rather than an array
	Included []*Resource
}

type documentWire struct {
	Data     json.RawMessage `json:"data"`
	Included []*Resource     `json:"included,omitempty"`
}

// ParseDocument decodes a wire document. Every resource, primary or
// included, must carry a non-empty id and type.
func ParseDocument(data []byte) (*Document, error) {
	var wire documentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc := &Document{Included: wire.Included}
	switch firstByte(wire.Data) {
	case 0, 'n':
		doc.Single = true
	case '[':
		if err := json.Unmarshal(wire.Data, &doc.Data); err != nil {
			return nil, fmt.Errorf("parse document data: %w", err)
		}
	case '{':
		var res Resource
		if err := json.Unmarshal(wire.Data, &res); err != nil {
			return nil, fmt.Errorf("parse document data: %w", err)
		}
		doc.Single = true
		doc.Data = []*Resource{&res}
	default:
		return nil, fmt.Errorf("document data must be null, object, or array")
	}
	for _, res := range doc.Resources() {
		if !res.Identifier().Valid() {
			return nil, fmt.Errorf("document resource missing id or type")
		}
	}
	return doc, nil
}

// MarshalJSON implements json.Marshaler for Document, restoring the
// single-vs-collection shape of the primary data.
func (d *Document) MarshalJSON() ([]byte, error) {
	wire := documentWire{Included: d.Included}
	if d.Single {
		if len(d.Data) > 1 {
			return nil, fmt.Errorf("single document with %d primary resources", len(d.Data))
		}
		if len(d.Data) == 0 {
			wire.Data = []byte("null")
		} else {
			wire.Data = mustRaw(d.Data[0])
		}
	} else {
		data := d.Data
		if data == nil {
			data = []*Resource{}
		}
		wire.Data = mustRaw(data)
	}
	return json.Marshal(wire)
}

// SingleDocument wraps one resource as a single-data document.
func SingleDocument(res *Resource) *Document {
	doc := &Document{Single: true}
	if res != nil {
		doc.Data = []*Resource{res}
	}
	return doc
}

// CollectionDocument wraps resources as a collection document.
func CollectionDocument(resources ...*Resource) *Document {
	return &Document{Data: resources}
}

// Resources returns primary and included resources, primary first.
func (d *Document) Resources() []*Resource {
	out := make([]*Resource, 0, len(d.Data)+len(d.Included))
	out = append(out, d.Data...)
	out = append(out, d.Included...)
	return out
}

// PrimaryIdentifiers returns the identifiers of the primary data in
// document order.
func (d *Document) PrimaryIdentifiers() []Identifier {
	ids := make([]Identifier, len(d.Data))
	for i, res := range d.Data {
		ids[i] = res.Identifier()
	}
	return ids
}

// ErrorObject is one entry of a remote error document.
type ErrorObject struct {
	Status string `json:"status,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ErrorDocument is the error counterpart to Document.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// ParseErrorDocument decodes a remote error document. Returns false if
// the body does not carry an errors array.
func ParseErrorDocument(data []byte) (*ErrorDocument, bool) {
	var doc ErrorDocument
	if err := json.Unmarshal(data, &doc); err != nil || len(doc.Errors) == 0 {
		return nil, false
	}
	return &doc, true
}
