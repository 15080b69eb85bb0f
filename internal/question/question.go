// Package question 提供内置题库：启动时从内嵌数据集加载题目，
// 运行期只读，支持按类型、按知识点筛选以及带补全的随机抽题。
package question

import "math_practice_backend/internal/knowledge"

const (
	TypeChoice      = "choice"
	TypeCalculation = "calculation"
)

// Choice 选择题选项，id 为单个大写字母，题内唯一。
type Choice struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation"`
}

// SolutionStep 计算题的一个解题步骤，最后一步通常带出最终答案。
type SolutionStep struct {
	Step string `json:"step"`
}

// KnowledgePointRef 题目引用的知识点，detail 在加载时从目录补齐。
type KnowledgePointRef struct {
	Outline string `json:"outline"`
	Detail  string `json:"detail"`
}

// Question 题目记录。choices 与 solution_steps 二者按 type 恰有其一。
type Question struct {
	ID              string              `json:"id"`
	Type            string              `json:"type"`
	Question        string              `json:"question"`
	KnowledgePoints []KnowledgePointRef `json:"knowledge_points"`
	Choices         []Choice            `json:"choices,omitempty"`
	SolutionSteps   []SolutionStep      `json:"solution_steps,omitempty"`
}

// CorrectChoiceID 返回正确选项的 id，计算题返回空串。
func (q Question) CorrectChoiceID() string {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return c.ID
		}
	}
	return ""
}

// resolveDetails 用目录中的权威释义补齐题目引用的知识点。
func (q *Question) resolveDetails() {
	for i, kp := range q.KnowledgePoints {
		if kp.Detail == "" {
			if point, ok := knowledge.Lookup(kp.Outline); ok {
				q.KnowledgePoints[i].Detail = point.Detail
			}
		}
	}
}
