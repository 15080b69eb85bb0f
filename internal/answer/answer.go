// Package answer 定义从学生答题图片解析出的答卷结构，并负责把
// 检测到的题目位置信息挂到对应题目上。
package answer

import (
	"fmt"
	"strconv"

	"math_practice_backend/internal/vision"
)

// Positions 题目在答题图片中的位置信息。
type Positions struct {
	BBox2D       vision.BBox `json:"bbox_2d"`
	AnswerBBox2D vision.BBox `json:"answer_bbox_2d"`
	Confidence   float64     `json:"confidence"`
}

// Response 学生对单题的作答。选择题填 Choice，计算题填
// SolutionSteps 和 Result。
type Response struct {
	Choice        string   `json:"choice,omitempty"`
	SolutionSteps []string `json:"solution_steps,omitempty"`
	Result        string   `json:"result,omitempty"`
}

// Question 答卷中的单题作答记录。
type Question struct {
	ID        string     `json:"id"`
	Answer    Response   `json:"answer"`
	Positions *Positions `json:"positions,omitempty"`
}

// Section 答卷章节，与试卷章节同构。
type Section struct {
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Questions []Question `json:"questions"`
}

// Sheet 一张答题图片解析出的完整答卷。Name 是AI识别出的学生姓名，
// StudentName/StudentID 是归一化后的学生标识。
type Sheet struct {
	Name        string    `json:"name"`
	PracticeID  string    `json:"practice_id"`
	StudentName string    `json:"student_name,omitempty"`
	StudentID   string    `json:"student_id,omitempty"`
	Sections    []Section `json:"sections"`
}

// EmptySheet 答卷解析失败时的保底结果。
func EmptySheet() Sheet {
	return Sheet{Name: "未知学生", Sections: []Section{}}
}

// QuestionCount 答卷总题数。
func (s *Sheet) QuestionCount() int {
	n := 0
	for _, section := range s.Sections {
		n += len(section.Questions)
	}
	return n
}

// FindAnswer 按章节类型与题目ID查找作答记录。只查找第一个类型
// 匹配的章节，与答卷章节同类型不重复的约定一致。
func (s *Sheet) FindAnswer(sectionType, questionID string) (Question, bool) {
	for _, section := range s.Sections {
		if section.Type != sectionType {
			continue
		}
		for _, q := range section.Questions {
			if q.ID == questionID {
				return q, true
			}
		}
		break
	}
	return Question{}, false
}

// ResolveStudentName 归一化学生姓名：识别结果可用时直接采用，
// 否则按图片序号命名为 学生N（序号从0起算）。
func ResolveStudentName(extracted string, index int) string {
	if extracted != "" && extracted != "未知学生" && extracted != "未识别" {
		return extracted
	}
	return fmt.Sprintf("学生%d", index+1)
}

// StudentIDAt 按图片序号生成学生ID（序号从0起算）。
func StudentIDAt(index int) string {
	return fmt.Sprintf("student_%d", index+1)
}

// AttachPositions 把检测到的题目区域写入答卷。区域数量与题目总数
// 相等时按整体顺序一一对应；不相等时退回按题目类型加章节内序号
// （从1起算）匹配，匹配不上的题目不写位置。
func AttachPositions(sheet *Sheet, areas []vision.QuestionArea) {
	total := sheet.QuestionCount()

	if len(areas) == total {
		idx := 0
		for si := range sheet.Sections {
			questions := sheet.Sections[si].Questions
			for qi := range questions {
				questions[qi].Positions = positionsFromArea(areas[idx])
				idx++
			}
		}
		return
	}

	byTypeAndNumber := map[string]map[string]*Positions{}
	for _, area := range areas {
		m := byTypeAndNumber[area.QuestionType]
		if m == nil {
			m = map[string]*Positions{}
			byTypeAndNumber[area.QuestionType] = m
		}
		m[area.QuestionNumber] = positionsFromArea(area)
	}

	for si := range sheet.Sections {
		m := byTypeAndNumber[sheet.Sections[si].Type]
		if m == nil {
			continue
		}
		questions := sheet.Sections[si].Questions
		for qi := range questions {
			if p, ok := m[strconv.Itoa(qi+1)]; ok {
				questions[qi].Positions = p
			}
		}
	}
}

func positionsFromArea(area vision.QuestionArea) *Positions {
	confidence := area.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	return &Positions{
		BBox2D:       area.BBox2D,
		AnswerBBox2D: area.AnswerBBox2D,
		Confidence:   confidence,
	}
}
