package entity

import (
	"encoding/json"
	"fmt"
)

// BoundingBox locates a fillable field on the normalized image in absolute
// pixels, origin top-left. It serializes as the [x, y, width, height] array
// the extraction prompt asks the model for.
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X, b.Y, b.Width, b.Height})
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var arr []int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("bounding_box: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("bounding_box: expected 4 elements, got %d", len(arr))
	}
	b.X, b.Y, b.Width, b.Height = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// ClampTo intersects the box with the [0,width-1] x [0,height-1] image
// rectangle. The result may be empty.
func (b BoundingBox) ClampTo(width, height int) BoundingBox {
	x0, y0 := max(b.X, 0), max(b.Y, 0)
	x1, y1 := min(b.X+b.Width, width), min(b.Y+b.Height, height)
	if x1 <= x0 || y1 <= y0 {
		return BoundingBox{X: x0, Y: y0}
	}
	return BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Empty reports whether the box covers no pixels.
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// FieldDescriptor is one detected fillable location on the document, as
// returned by the extraction model and presented to the client verbatim.
type FieldDescriptor struct {
	InputField      string      `json:"inputfield"`
	Label           string      `json:"label"`
	NormalizedLabel string      `json:"normalized_label,omitempty"`
	BoundingBox     BoundingBox `json:"bounding_box"`
	Context         string      `json:"context,omitempty"`
	Page            int         `json:"page,omitempty"`
	DocumentName    string      `json:"document_name,omitempty"`
	FieldType       string      `json:"inputfield_type"`
	Confidence      float64     `json:"inputfield_confidence"`
}

// AnswerJudgment is the model's verdict on one user reply. It is consumed
// immediately by the session controller and never persisted.
type AnswerJudgment struct {
	Answer         string `json:"answer"`
	IsValid        bool   `json:"is_valid"`
	InvalidReason  string `json:"invalid_reason"`
	IsFollowup     bool   `json:"is_followup"`
	FollowupPrompt string `json:"followup_prompt"`
}
