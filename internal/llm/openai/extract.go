package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formflow/formflow/constants"
	"github.com/formflow/formflow/internal/common"
	"github.com/formflow/formflow/internal/entity"
	"github.com/formflow/formflow/internal/llm"
)

// ExtractFields implements llm.FieldExtractor with a single vision
// chat/completions call. The reply is fence-stripped, parsed as a JSON array
// and validated against the field schema; anything unusable aborts with
// common.ErrExtractionParse rather than returning partial data.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) ([]entity.FieldDescriptor, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"document", req.DocumentName,
		"image_width", req.ImageWidth,
		"image_height", req.ImageHeight,
	)

	dataURL, err := readAsDataURL(req.ImagePath)
	if err != nil {
		return nil, nil, common.WrapError(err, "read normalized image")
	}

	sys := buildExtractionSystemPrompt(req.ImageWidth, req.ImageHeight, constants.DefaultDPI)
	content, err := c.chat(ctx, []map[string]any{
		textMessage("system", sys),
		visionMessage("user", extractionUserPrompt, dataURL),
	})
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, err
	}

	payload, err := llm.ExtractJSONPayload(content)
	if err != nil {
		c.log.Error("llm.extract.payload_error",
			"req_id", rid, "error", err, "content_len", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, fmt.Errorf("%w: %v", common.ErrExtractionParse, err)
	}

	if err := llm.ValidateJSONAgainstSchema(llm.BuildFieldArraySchema(), payload); err != nil {
		c.log.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(payload),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, payload, fmt.Errorf("%w: %v", common.ErrExtractionParse, err)
	}

	var fields []entity.FieldDescriptor
	if err := json.Unmarshal(payload, &fields); err != nil {
		c.log.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, payload, fmt.Errorf("%w: unmarshal fields: %v", common.ErrExtractionParse, err)
	}

	fields = c.clampFields(rid, fields, req.ImageWidth, req.ImageHeight)

	if req.SessionDir != "" {
		if err := c.saveArtifact(req.SessionDir, payload); err != nil {
			c.log.Warn("llm.extract.artifact_write_failed", "req_id", rid, "error", err)
		}
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"field_count", len(fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, payload, nil
}

// clampFields intersects every bounding box with the image rectangle; fields
// whose box clamps away entirely are dropped, preserving order otherwise.
func (c *Client) clampFields(rid string, fields []entity.FieldDescriptor, width, height int) []entity.FieldDescriptor {
	out := fields[:0]
	for _, f := range fields {
		clamped := f.BoundingBox.ClampTo(width, height)
		if clamped.Empty() {
			c.log.Warn("llm.extract.box_dropped",
				"req_id", rid, "inputfield", f.InputField, "box", f.BoundingBox)
			continue
		}
		if clamped != f.BoundingBox {
			c.log.Warn("llm.extract.box_clamped",
				"req_id", rid, "inputfield", f.InputField, "from", f.BoundingBox, "to", clamped)
			f.BoundingBox = clamped
		}
		out = append(out, f)
	}
	return out
}

func (c *Client) saveArtifact(dir string, payload []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, constants.SessionArtifactName), payload, 0o644)
}

func readAsDataURL(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(path))
	mt := mime.TypeByExtension(ext)
	if mt == "" {
		switch constants.NormalizeExt(ext) {
		case "jpg", "jpeg":
			mt = "image/jpeg"
		case "png":
			mt = "image/png"
		default:
			mt = "application/octet-stream"
		}
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
