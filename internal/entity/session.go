package entity

import (
	"time"

	"github.com/formflow/formflow/internal/common"
)

// FormSession is the persisted state of one user's progress through one
// uploaded form. Fields are stored once at creation in presentation order;
// the cursor only ever moves forward, one field per accepted answer.
type FormSession struct {
	SessionID    string            `json:"session_id"`
	Fields       []FieldDescriptor `json:"fields"`
	CurrentIndex int               `json:"current_index"`
	Answers      map[string]string `json:"answers"`
	ImageWidth   int               `json:"image_width"`
	ImageHeight  int               `json:"image_height"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Complete reports whether every field has been answered.
func (s *FormSession) Complete() bool {
	return s.CurrentIndex >= len(s.Fields)
}

// CurrentField returns the field under the cursor, or ErrFieldIndexExhausted
// once the session is complete. Callers must not index Fields directly.
func (s *FormSession) CurrentField() (FieldDescriptor, error) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Fields) {
		return FieldDescriptor{}, common.ErrFieldIndexExhausted
	}
	return s.Fields[s.CurrentIndex], nil
}
