// Package export produces downloadable artifacts from session state.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/formflow/formflow/internal/repository"
)

// Service is a tiny façade over the session store that produces XLSX bytes.
type Service struct {
	repo   repository.SessionRepository
	logger *slog.Logger
}

func NewService(repo repository.SessionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportAnswersXLSX returns an XLSX workbook (as bytes) with one row per
// field: label, recorded answer, and progress status. Unanswered fields are
// included so a partially filled form exports meaningfully.
func (s *Service) ExportAnswersXLSX(ctx context.Context, sessionID string) ([]byte, error) {
	start := time.Now()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Answers"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defaultIndex, _ := f.GetSheetIndex("Sheet1"); defaultIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{"Field", "Label", "Type", "Answer", "Status"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for i, field := range sess.Fields {
		status := "pending"
		answer := ""
		if i < sess.CurrentIndex {
			status = "answered"
			answer = sess.Answers[field.InputField]
		}

		label := field.NormalizedLabel
		if label == "" {
			label = field.Label
		}

		values := []any{field.InputField, label, field.FieldType, answer, status}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export.answers.ok",
		"session_id", sessionID,
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
