// Package practice 负责组卷：根据知识点从题库选题、生成分节试卷，
// 并提供用于渲染与持久化的试卷快照。
package practice

import (
	"math/rand"
	"regexp"
	"strings"

	"math_practice_backend/internal/question"

	"github.com/google/uuid"
)

// Section 试卷章节，question_ids 中只出现本章节类型的题目。
type Section struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	QuestionIDs []string `json:"question_ids"`
}

// Practice 一次组卷的结果。practice_id 每次生成时随机分配，
// 生成后不再修改，重新生成会产生新的 Practice。
type Practice struct {
	Title      string    `json:"title"`
	PracticeID string    `json:"practice_id"`
	Sections   []Section `json:"sections"`
}

const (
	choiceSectionName      = "一、选择题"
	calculationSectionName = "二、计算题"
)

// Assembler 组卷器，持有只读题库。
type Assembler struct {
	bank *question.Bank
}

func NewAssembler(bank *question.Bank) *Assembler {
	return &Assembler{bank: bank}
}

// Build 根据知识点组卷。选择题章节在前、计算题章节在后，空章节
// 不输出。题量不足时按实际选到的数量出卷。
func (a *Assembler) Build(rng *rand.Rand, title string, knowledgePoints []string, choiceCount, calculationCount int) Practice {
	selected := a.bank.RandomByKnowledgePoints(rng, knowledgePoints, choiceCount, calculationCount)

	var choiceIDs, calculationIDs []string
	for _, q := range selected {
		switch q.Type {
		case question.TypeChoice:
			choiceIDs = append(choiceIDs, q.ID)
		case question.TypeCalculation:
			calculationIDs = append(calculationIDs, q.ID)
		}
	}

	var sections []Section
	if len(choiceIDs) > 0 {
		sections = append(sections, Section{
			Name:        choiceSectionName,
			Type:        question.TypeChoice,
			QuestionIDs: choiceIDs,
		})
	}
	if len(calculationIDs) > 0 {
		sections = append(sections, Section{
			Name:        calculationSectionName,
			Type:        question.TypeCalculation,
			QuestionIDs: calculationIDs,
		})
	}

	return Practice{
		Title:      title,
		PracticeID: uuid.New().String()[:8],
		Sections:   sections,
	}
}

// finalAnswerPattern 从最后一个解题步骤里提取末尾数值答案：
// 可选等号、可选正负号、整数或小数，取第一个匹配。
var finalAnswerPattern = regexp.MustCompile(`=?\s*([+-]?\d+(?:\.\d+)?)`)

// ExtractFinalAnswer 对计算题做尽力而为的最终答案提取，仅用于展示，
// 批改流程不依赖该值。提取不到时返回空串。
func ExtractFinalAnswer(steps []question.SolutionStep) string {
	if len(steps) == 0 {
		return ""
	}
	last := steps[len(steps)-1].Step
	m := finalAnswerPattern.FindStringSubmatch(last)
	if m == nil {
		return ""
	}
	return m[1]
}

// Snapshot 将 Practice 展开为包含完整题目内容的试卷快照。
// 快照的章节形状与题目顺序与原 Practice 完全一致。
func (a *Assembler) Snapshot(p Practice) Sheet {
	sheet := Sheet{
		Title:      p.Title,
		PracticeID: p.PracticeID,
	}

	for _, section := range p.Sections {
		ss := SheetSection{
			Name:        section.Name,
			Type:        section.Type,
			QuestionIDs: section.QuestionIDs,
		}

		for _, id := range section.QuestionIDs {
			q, ok := a.bank.Get(id)
			if !ok {
				continue
			}

			sq := SheetQuestion{
				ID:              q.ID,
				Type:            q.Type,
				Metadata:        SheetMetadata{Category: section.Type},
				Question:        q.Question,
				KnowledgePoints: q.KnowledgePoints,
			}
			switch {
			case len(q.Choices) > 0:
				sq.Choices = q.Choices
				sq.Answer = q.CorrectChoiceID()
			case len(q.SolutionSteps) > 0:
				sq.SolutionSteps = q.SolutionSteps
				sq.Answer = ExtractFinalAnswer(q.SolutionSteps)
			}
			ss.Questions = append(ss.Questions, sq)
		}
		sheet.Sections = append(sheet.Sections, ss)
	}
	return sheet
}

// QuestionCount 试卷总题数，按章节顺序统计。
func (s Sheet) QuestionCount() int {
	n := 0
	for _, section := range s.Sections {
		n += len(section.Questions)
	}
	return n
}

// FlattenQuestions 按固定章节顺序展平全部题目。
func (s Sheet) FlattenQuestions() []SheetQuestion {
	var out []SheetQuestion
	for _, section := range s.Sections {
		out = append(out, section.Questions...)
	}
	return out
}

// SheetMetadata 与历史数据格式保持一致的题目元信息。
type SheetMetadata struct {
	Category string `json:"category"`
}

// SheetQuestion 快照中的完整题目投影。
type SheetQuestion struct {
	ID              string                       `json:"id"`
	Type            string                       `json:"type"`
	Metadata        SheetMetadata                `json:"metadata"`
	Question        string                       `json:"question"`
	KnowledgePoints []question.KnowledgePointRef `json:"knowledge_points"`
	Choices         []question.Choice            `json:"choices,omitempty"`
	SolutionSteps   []question.SolutionStep      `json:"solution_steps,omitempty"`
	Answer          string                       `json:"answer"`
}

// SheetSection 快照章节：既保留 question_ids 以便还原 Practice，
// 也内联完整题目便于渲染与批改。
type SheetSection struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	QuestionIDs []string        `json:"question_ids"`
	Questions   []SheetQuestion `json:"questions"`
}

// Sheet 试卷快照，是会话中持久化的 practice_data。
type Sheet struct {
	Title      string         `json:"title"`
	PracticeID string         `json:"practice_id"`
	Sections   []SheetSection `json:"sections"`
}

// SectionTypeOrdinal 返回题目在其类型内的1起始序号，用于兜底的
// 类型+序号匹配。找不到返回 0。
func (s Sheet) SectionTypeOrdinal(questionID string) (string, int) {
	counts := map[string]int{}
	for _, section := range s.Sections {
		for _, q := range section.Questions {
			counts[q.Type]++
			if q.ID == questionID {
				return q.Type, counts[q.Type]
			}
		}
	}
	return "", 0
}

// KnowledgePointOutlines 试卷涉及的全部知识点大纲名，按出现顺序去重。
func (s Sheet) KnowledgePointOutlines() []string {
	seen := map[string]bool{}
	var out []string
	for _, section := range s.Sections {
		for _, q := range section.Questions {
			for _, kp := range q.KnowledgePoints {
				if kp.Outline != "" && !seen[kp.Outline] {
					seen[kp.Outline] = true
					out = append(out, kp.Outline)
				}
			}
		}
	}
	return out
}

// TitleForRegeneration 基于错误知识点的再生成试卷标题。
func TitleForRegeneration(outlines []string) string {
	return "针对性练习 - " + strings.Join(outlines, ", ")
}
