package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Well-known metadata keys.
const (
	MetaDocuments               = "documents"
	MetaSigner                  = "signer"
	MetaDocumentsLocation       = "documents_location"
	MetaEnvelopeID              = "envelope_id"
	MetaSentAt                  = "sent_at"
	MetaRequests                = "requests"
	MetaResponses               = "responses"
	MetaProviderStatus          = "provider_status"
	MetaSignedAt                = "signed_at"
	MetaSignedDocumentsLocation = "signed_documents_location"
	MetaUploadedAt              = "uploaded_at"
	MetaErrorMessage            = "error_message"
	MetaErrorAt                 = "error_at"
	MetaExpiredAt               = "expired_at"
	MetaExpirationReason        = "expiration_reason"
)

// ReservedMetadataKeys are written by the service only; callers may not supply them.
var ReservedMetadataKeys = []string{
	MetaDocuments, MetaSigner, MetaDocumentsLocation, MetaEnvelopeID, MetaSentAt,
	MetaRequests, MetaResponses, MetaProviderStatus, MetaSignedAt,
	MetaSignedDocumentsLocation, MetaUploadedAt, MetaErrorMessage, MetaErrorAt,
	MetaExpiredAt, MetaExpirationReason,
}

// ErrEnvelopeIDChanged is returned when a different envelope id is written over an existing one.
var ErrEnvelopeIDChanged = errors.New("envelope_id is already set to a different value")

// Metadata is an insertion-ordered JSON object. Keys are never removed; writing an existing
// key supersedes its value in place.
type Metadata struct {
	keys   []string
	values map[string]any
}

// TraceEntry is one timestamped element of the requests/responses logs.
type TraceEntry struct {
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload"`
}

func (m *Metadata) init() {
	if m.values == nil {
		m.values = make(map[string]any)
	}
}

// Set writes key, appending it to the key order when new.
func (m *Metadata) Set(key string, value any) {
	m.init()
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m Metadata) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m Metadata) Len() int {
	return len(m.keys)
}

// String returns the value of key when it is a string.
func (m Metadata) String(key string) string {
	v, _ := m.values[key].(string)
	return v
}

func (m *Metadata) SetTime(key string, t time.Time) {
	m.Set(key, t.UTC().Format(time.RFC3339Nano))
}

// Time parses a timestamp written by SetTime.
func (m Metadata) Time(key string) (time.Time, bool) {
	raw := m.String(key)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (m Metadata) EnvelopeID() string {
	return m.String(MetaEnvelopeID)
}

func (m Metadata) HasEnvelopeID() bool {
	return m.EnvelopeID() != ""
}

// SetEnvelopeID records the vendor envelope id. It can be written once; rewriting the same
// value is a no-op and a different value is rejected.
func (m *Metadata) SetEnvelopeID(id string) error {
	current := m.EnvelopeID()
	if current == id {
		return nil
	}
	if current != "" {
		return fmt.Errorf("%w: have %q, got %q", ErrEnvelopeIDChanged, current, id)
	}
	m.Set(MetaEnvelopeID, id)
	return nil
}

func (m Metadata) DocumentsLocation() string {
	return m.String(MetaDocumentsLocation)
}

func (m *Metadata) SetDocumentsLocation(location string) {
	m.Set(MetaDocumentsLocation, location)
}

func (m Metadata) SignedDocumentsLocation() string {
	return m.String(MetaSignedDocumentsLocation)
}

func (m *Metadata) SetSignedDocumentsLocation(location string) {
	m.Set(MetaSignedDocumentsLocation, location)
}

// AppendRequest adds a vendor request to the audit trail.
func (m *Metadata) AppendRequest(at time.Time, payload any) {
	m.appendTrace(MetaRequests, at, payload)
}

// AppendResponse adds a vendor response to the audit trail.
func (m *Metadata) AppendResponse(at time.Time, payload any) {
	m.appendTrace(MetaResponses, at, payload)
}

func (m *Metadata) appendTrace(key string, at time.Time, payload any) {
	var list []any
	if existing, ok := m.values[key].([]any); ok {
		list = existing
	}
	list = append(list, map[string]any{
		"timestamp": at.UTC().Format(time.RFC3339Nano),
		"payload":   payload,
	})
	m.Set(key, list)
}

// Trace returns the entries recorded under requests or responses.
func (m Metadata) Trace(key string) []TraceEntry {
	list, _ := m.values[key].([]any)
	out := make([]TraceEntry, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ts, _ := entry["timestamp"].(string)
		out = append(out, TraceEntry{Timestamp: ts, Payload: entry["payload"]})
	}
	return out
}

// Clone returns a deep copy via a JSON round trip. It fails when a value cannot be encoded.
func (m Metadata) Clone() (Metadata, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return Metadata{}, err
	}
	var out Metadata
	if err := out.UnmarshalJSON(raw); err != nil {
		return Metadata{}, err
	}
	return out, nil
}

// MarshalJSON writes the keys in insertion order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.values[key])
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the document order of the top-level keys.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("metadata must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.New("metadata key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("metadata key %q: %w", key, err)
		}
		value, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("metadata key %q: %w", key, err)
		}
		m.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return errors.New("invalid scan source for metadata")
	}
}
