package models

import (
	"bytes"
	"encoding/json"
	"time"
)

const (
	EventTypeError      = "error"
	EventTypeUsage      = "usage"
	EventTypeLog        = "log"
	EventTypeNotFound   = "404"
	EventTypeSession    = "session"
	EventTypeSessionEnd = "sessionend"
	EventTypeHeartbeat  = "heartbeat"
)

// Reserved data keys. Keys starting with "@" belong to the engine.
const (
	DataKeyError            = "@error"
	DataKeySimpleError      = "@simple_error"
	DataKeyRequest          = "@request"
	DataKeyEnvironment      = "@environment"
	DataKeyUser             = "@user"
	DataKeyUserDescription  = "@user_description"
	DataKeyStack            = "@stack"
	DataKeyLevel            = "@level"
	DataKeySubmissionMethod = "@submission_method"
	DataKeyVersion          = "@version"
	DataKeyEventReference   = "@ref"
	DataKeyManualStacking   = "@manual_stacking"
)

const TagCritical = "Critical"

type Event struct {
	Type        string                 `json:"type,omitempty"`
	Source      string                 `json:"source,omitempty"`
	Date        time.Time              `json:"date"`
	Tags        []string               `json:"tags,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Geo         string                 `json:"geo,omitempty"`
	Value       *float64               `json:"value,omitempty"`
	Count       int                    `json:"count,omitempty"`
	ReferenceID string                 `json:"reference_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

func NewEvent(eventType string) *Event {
	return &Event{
		Type: eventType,
		Data: make(map[string]interface{}),
	}
}

func IsReservedKey(key string) bool {
	return len(key) > 0 && key[0] == '@'
}

func (e *Event) GetData(key string) (interface{}, bool) {
	if e.Data == nil {
		return nil, false
	}
	value, ok := e.Data[key]
	return value, ok
}

// SetData stores value under key, replacing any existing value.
func (e *Event) SetData(key string, value interface{}) {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
}

// SetDataIfAbsent stores value only when key is not present yet and
// reports whether it did.
func (e *Event) SetDataIfAbsent(key string, value interface{}) bool {
	if _, exists := e.GetData(key); exists {
		return false
	}
	e.SetData(key, value)
	return true
}

func (e *Event) AddTags(tags ...string) {
	for _, tag := range tags {
		if tag != "" {
			e.Tags = append(e.Tags, tag)
		}
	}
}

func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy made through the JSON representation, which is
// the form the event is persisted and submitted in.
func (e *Event) Clone() (*Event, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return UnmarshalEvent(body)
}

// UnmarshalEvent decodes the persisted or submitted form of an event.
// Numbers are kept as json.Number and @error and @user come back typed, so
// marshaling the result reproduces body for events this package encoded.
func UnmarshalEvent(body []byte) (*Event, error) {
	var ev Event
	if err := decodeJSON(body, &ev); err != nil {
		return nil, err
	}
	if info, ok := ev.ErrorInfo(); ok {
		ev.Data[DataKeyError] = info
	}
	if user, ok := ev.UserInfo(); ok {
		ev.Data[DataKeyUser] = user
	}
	return &ev, nil
}

// ErrorInfo returns the structured error stored under @error. Values that
// were loaded back from storage arrive as generic maps and are decoded.
func (e *Event) ErrorInfo() (*ErrorInfo, bool) {
	value, ok := e.GetData(DataKeyError)
	if !ok || value == nil {
		return nil, false
	}
	switch v := value.(type) {
	case *ErrorInfo:
		return v, v != nil
	case ErrorInfo:
		return &v, true
	}
	var info ErrorInfo
	if err := decodeInto(value, &info); err != nil {
		return nil, false
	}
	return &info, true
}

// UserInfo returns the identity stored under @user.
func (e *Event) UserInfo() (*UserInfo, bool) {
	value, ok := e.GetData(DataKeyUser)
	if !ok || value == nil {
		return nil, false
	}
	switch v := value.(type) {
	case *UserInfo:
		return v, v != nil
	case UserInfo:
		return &v, true
	}
	var info UserInfo
	if err := decodeInto(value, &info); err != nil {
		return nil, false
	}
	return &info, true
}

// Level returns the @level value of a log event.
func (e *Event) Level() string {
	value, ok := e.GetData(DataKeyLevel)
	if !ok {
		return ""
	}
	level, _ := value.(string)
	return level
}

func decodeInto(value interface{}, target interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return decodeJSON(body, target)
}

func decodeJSON(body []byte, target interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(target)
}
