// Package grading 汇聚批改语义：选择题本地判分、计算题AI批改结论的
// 统一记录、错误知识点统计与批改报告生成。
package grading

import (
	"slices"
	"sort"

	"math_practice_backend/internal/knowledge"
	"math_practice_backend/internal/practice"
	"math_practice_backend/internal/question"
)

// StepAnalysis AI对计算题单个步骤的批改结论。
type StepAnalysis struct {
	StepIndex   int    `json:"step_index"`
	StudentStep string `json:"student_step"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation"`
}

// Result 单题批改记录。选择题填 IsCorrect/StudentAnswer/CorrectAnswer/
// Explanation，计算题填 OverallCorrect 及步骤分析。题目与学生上下文
// 由 Enriched 补全。
type Result struct {
	QuestionID      string   `json:"question_id"`
	QuestionType    string   `json:"question_type"`
	QuestionText    string   `json:"question_text"`
	KnowledgePoints []string `json:"knowledge_points"`
	StudentName     string   `json:"student_name"`
	StudentID       string   `json:"student_id"`

	IsCorrect     bool   `json:"is_correct"`
	StudentAnswer string `json:"student_answer,omitempty"`
	CorrectAnswer string `json:"correct_answer,omitempty"`
	Explanation   string `json:"explanation,omitempty"`

	OverallCorrect         *bool          `json:"overall_correct,omitempty"`
	FinalAnswerCorrect     *bool          `json:"final_answer_correct,omitempty"`
	StepsAnalysis          []StepAnalysis `json:"steps_analysis,omitempty"`
	FinalAnswerExplanation string         `json:"final_answer_explanation,omitempty"`
}

// Correct 判定单题是否判对。计算题只认 OverallCorrect，缺失视为
// 判错，绝不回退到 IsCorrect；其余题型看 IsCorrect。
func (r Result) Correct() bool {
	if r.QuestionType == question.TypeCalculation {
		return r.OverallCorrect != nil && *r.OverallCorrect
	}
	return r.IsCorrect
}

// Enriched 补全题目与学生上下文，返回新记录。
func (r Result) Enriched(q practice.SheetQuestion, studentName, studentID string) Result {
	r.QuestionID = q.ID
	r.QuestionType = q.Type
	r.QuestionText = q.Question
	r.KnowledgePoints = outlinesOf(q.KnowledgePoints)
	r.StudentName = studentName
	r.StudentID = studentID
	return r
}

func outlinesOf(refs []question.KnowledgePointRef) []string {
	outlines := make([]string, 0, len(refs))
	for _, ref := range refs {
		outlines = append(outlines, ref.Outline)
	}
	return outlines
}

// GradeChoice 本地批改选择题：学生选项与正确选项比对即可，无需AI。
// 判错时取学生所选错误选项的解析作为讲评，选项未写解析时给通用
// 提示；学生选项不在选项表中时不给解析。
func GradeChoice(studentAnswer, correctAnswer string, choices []question.Choice) Result {
	r := Result{
		IsCorrect:     studentAnswer == correctAnswer,
		StudentAnswer: studentAnswer,
		CorrectAnswer: correctAnswer,
	}
	if r.IsCorrect {
		return r
	}
	for _, c := range choices {
		if c.ID == studentAnswer {
			if c.Explanation != "" {
				r.Explanation = c.Explanation
			} else {
				r.Explanation = "答案错误"
			}
			break
		}
	}
	return r
}

// CalculationGrade AI批改计算题返回的结论。
type CalculationGrade struct {
	OverallCorrect         bool           `json:"overall_correct"`
	FinalAnswerCorrect     bool           `json:"final_answer_correct"`
	StepsAnalysis          []StepAnalysis `json:"steps_analysis"`
	FinalAnswerExplanation string         `json:"final_answer_explanation"`
}

// FallbackCalculationGrade AI批改失败时的保底结论，一律判错。
func FallbackCalculationGrade() CalculationGrade {
	return CalculationGrade{
		StepsAnalysis:          []StepAnalysis{},
		FinalAnswerExplanation: "批改过程中出现错误",
	}
}

// Result 把AI批改结论折叠为统一批改记录。
func (g CalculationGrade) Result() Result {
	overall := g.OverallCorrect
	final := g.FinalAnswerCorrect
	return Result{
		OverallCorrect:         &overall,
		FinalAnswerCorrect:     &final,
		StepsAnalysis:          g.StepsAnalysis,
		FinalAnswerExplanation: g.FinalAnswerExplanation,
	}
}

// 每个知识点最多保留的错误示例数。
const maxErrorExamples = 3

// ErrorPoint 一个知识点的错误统计。
type ErrorPoint struct {
	Outline       string   `json:"outline"`
	Detail        string   `json:"detail"`
	ErrorCount    int      `json:"error_count"`
	ErrorExamples []string `json:"error_examples"`
}

// ErrorAnalysis 错误知识点分析结果。
type ErrorAnalysis struct {
	ErrorKnowledgePoints []ErrorPoint `json:"error_knowledge_points"`
	TopErrorPoints       []ErrorPoint `json:"top_error_points"`
}

// AnalyzeErrors 从批改记录统计错误知识点：按判错题目累计每个知识点
// 的出错次数，收集去重后的错误解析作为示例（最多保留前3条），标准
// 描述从知识点目录取。排序按出错次数降序，次数相同保持首次出现的
// 先后；TopErrorPoints 取前2个。
func AnalyzeErrors(results []Result) ErrorAnalysis {
	byOutline := map[string]*ErrorPoint{}
	var order []string

	for _, r := range results {
		if r.Correct() {
			continue
		}
		for _, outline := range r.KnowledgePoints {
			if outline == "" {
				continue
			}
			ep, ok := byOutline[outline]
			if !ok {
				ep = &ErrorPoint{Outline: outline, ErrorExamples: []string{}}
				if kp, found := knowledge.Lookup(outline); found {
					ep.Detail = kp.Detail
				}
				byOutline[outline] = ep
				order = append(order, outline)
			}
			ep.ErrorCount++
			if r.Explanation != "" && !slices.Contains(ep.ErrorExamples, r.Explanation) {
				ep.ErrorExamples = append(ep.ErrorExamples, r.Explanation)
			}
		}
	}

	points := make([]ErrorPoint, 0, len(order))
	for _, outline := range order {
		ep := *byOutline[outline]
		if len(ep.ErrorExamples) > maxErrorExamples {
			ep.ErrorExamples = ep.ErrorExamples[:maxErrorExamples]
		}
		points = append(points, ep)
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].ErrorCount > points[j].ErrorCount
	})

	top := make([]ErrorPoint, 0, 2)
	for _, ep := range points {
		if len(top) == 2 {
			break
		}
		top = append(top, ep)
	}

	return ErrorAnalysis{ErrorKnowledgePoints: points, TopErrorPoints: top}
}

// TopOutlines 错误最多的知识点大纲名，用于再出针对性练习。
func (a ErrorAnalysis) TopOutlines() []string {
	outlines := make([]string, 0, len(a.TopErrorPoints))
	for _, ep := range a.TopErrorPoints {
		outlines = append(outlines, ep.Outline)
	}
	return outlines
}
