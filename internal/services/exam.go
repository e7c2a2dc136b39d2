package services

import (
	"fmt"
	"math"

	"github.com/veripack/veripack-backend/internal/types"
	"github.com/veripack/veripack-backend/internal/utils"
)

const examSectionSize = 6

// BuildExam selects up to examSize questions, verified ones first (original
// order preserved within each group), and partitions them into timed
// sections of up to six. Deterministic aside from the generated exam id.
func BuildExam(questions []types.Question, examSize int, title string) types.Exam {
	if examSize <= 0 {
		examSize = 12
	}

	selected := make([]types.Question, 0, examSize)
	for _, question := range questions {
		if len(selected) >= examSize {
			break
		}
		if question.Verified {
			selected = append(selected, question)
		}
	}
	for _, question := range questions {
		if len(selected) >= examSize {
			break
		}
		if !question.Verified {
			selected = append(selected, question)
		}
	}

	totalSeconds := 0
	for _, question := range selected {
		totalSeconds += question.TimeSeconds
	}

	var sections []types.ExamSection
	for start := 0; start < len(selected); start += examSectionSize {
		end := start + examSectionSize
		if end > len(selected) {
			end = len(selected)
		}
		chunk := selected[start:end]
		ids := make([]string, len(chunk))
		sectionSeconds := 0
		for i, question := range chunk {
			ids[i] = question.ID
			sectionSeconds += question.TimeSeconds
		}
		sections = append(sections, types.ExamSection{
			Title:       fmt.Sprintf("Section %d", len(sections)+1),
			QuestionIDs: ids,
			TimeMinutes: roundMinutes(sectionSeconds),
		})
	}
	if sections == nil {
		sections = []types.ExamSection{}
	}

	return types.Exam{
		ID:               utils.MakeID("exam"),
		Title:            title,
		TotalTimeMinutes: roundMinutes(totalSeconds),
		Sections:         sections,
	}
}

func roundMinutes(seconds int) int {
	return int(math.Round(float64(seconds) / 60))
}
