package question

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
)

//go:embed data/questions.json
var questionData []byte

type dataset struct {
	Questions []Question `json:"questions"`
}

// Bank 内存题库。加载后只读，可被多个请求并发读取。
type Bank struct {
	questions []Question
	byID      map[string]int
}

// NewBank 解析内嵌数据集并做完整性校验。数据集损坏属于启动前置
// 条件失败，调用方应当直接终止进程而不是带病服务。
func NewBank() (*Bank, error) {
	var ds dataset
	if err := json.Unmarshal(questionData, &ds); err != nil {
		return nil, fmt.Errorf("题库数据解析失败: %w", err)
	}

	b := &Bank{byID: make(map[string]int, len(ds.Questions))}
	for i, q := range ds.Questions {
		if err := validateQuestion(q); err != nil {
			return nil, fmt.Errorf("题目 %d (%s): %w", i+1, q.ID, err)
		}
		if _, dup := b.byID[q.ID]; dup {
			return nil, fmt.Errorf("题目ID重复: %s", q.ID)
		}
		q.resolveDetails()
		b.byID[q.ID] = len(b.questions)
		b.questions = append(b.questions, q)
	}

	if len(b.questions) == 0 {
		return nil, fmt.Errorf("题库为空")
	}
	return b, nil
}

func validateQuestion(q Question) error {
	if !strings.HasPrefix(q.ID, "qu_") {
		return fmt.Errorf("题目ID格式错误: %q", q.ID)
	}
	if q.Question == "" {
		return fmt.Errorf("题干为空")
	}

	switch q.Type {
	case TypeChoice:
		if len(q.SolutionSteps) > 0 {
			return fmt.Errorf("选择题不应包含解题步骤")
		}
		if len(q.Choices) < 2 {
			return fmt.Errorf("选择题至少需要2个选项")
		}
		seen := make(map[string]bool, len(q.Choices))
		correct := 0
		for _, c := range q.Choices {
			if seen[c.ID] {
				return fmt.Errorf("选项ID重复: %s", c.ID)
			}
			seen[c.ID] = true
			if c.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("选择题必须有且仅有一个正确答案，当前 %d 个", correct)
		}
	case TypeCalculation:
		if len(q.Choices) > 0 {
			return fmt.Errorf("计算题不应包含选项")
		}
		if len(q.SolutionSteps) == 0 {
			return fmt.Errorf("计算题必须包含解题步骤")
		}
	default:
		return fmt.Errorf("未知题目类型: %q", q.Type)
	}
	return nil
}

// Size 题库中的题目总数。
func (b *Bank) Size() int {
	return len(b.questions)
}

// Get 按 ID 查找题目。
func (b *Bank) Get(id string) (Question, bool) {
	idx, ok := b.byID[id]
	if !ok {
		return Question{}, false
	}
	return b.questions[idx], true
}

// All 返回全部题目的副本，保持加载顺序。
func (b *Bank) All() []Question {
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out
}

// ByType 按类型筛选，保持加载顺序。
func (b *Bank) ByType(qtype string) []Question {
	var out []Question
	for _, q := range b.questions {
		if q.Type == qtype {
			out = append(out, q)
		}
	}
	return out
}

// ByKnowledgePoints 精确匹配：题目的任一知识点大纲名与给定名称
// 相等即入选，每题至多出现一次，保持加载顺序。
// 未知的大纲名匹配不到任何题目，不视为错误。
func (b *Bank) ByKnowledgePoints(names []string) []Question {
	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[n] = true
	}

	var out []Question
	for _, q := range b.questions {
		for _, kp := range q.KnowledgePoints {
			if nameSet[kp.Outline] {
				out = append(out, q)
				break
			}
		}
	}
	return out
}

// ByKnowledgePointsLoose 宽松匹配变体：在精确匹配之外，还接受
// OutlineMatches 判定为同一话题的大纲名。仅在 AI 抽取的知识点名
// 与目录存在措辞漂移时使用，默认选题路径走 ByKnowledgePoints。
func (b *Bank) ByKnowledgePointsLoose(names []string) []Question {
	var out []Question
	for _, q := range b.questions {
		matched := false
		for _, kp := range q.KnowledgePoints {
			for _, name := range names {
				if kp.Outline == name || OutlineMatches(kp.Outline, name) {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if matched {
			out = append(out, q)
		}
	}
	return out
}

// topicClusters 宽松匹配使用的话题关键词，双方都含同一关键词即认为
// 指向同一话题。
var topicClusters = []string{
	"加法", "减法", "乘法", "除法", "乘方", "混合运算", "科学计数法", "倒数",
}

// OutlineMatches 判断两个知识点名称是否指向同一话题。
// 归一化规则：统一"记数"为"计数"的写法差异，去掉末尾的"法则"与
// "运算"后缀；之后 (a) 一方是另一方的子串，或 (b) 双方包含同一个
// 话题关键词，即判定匹配。规则是确定性的纯函数，便于单独测试。
func OutlineMatches(outline, name string) bool {
	a := normalizeOutline(outline)
	b := normalizeOutline(name)
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	for _, topic := range topicClusters {
		if strings.Contains(a, topic) && strings.Contains(b, topic) {
			return true
		}
	}
	return false
}

func normalizeOutline(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "记数", "计数")
	for _, suffix := range []string{"法则", "运算"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return s
}

// RandomByKnowledgePoints 按知识点随机抽题：每种类型独立两阶段抽取，
// 先从匹配集合中无放回均匀抽样，不足时从该类型剩余题目中补全。
// 结果数量不超过请求数量、不含重复，题库过小时允许不足额返回。
// 随机源由调用方注入，便于测试复现。
func (b *Bank) RandomByKnowledgePoints(rng *rand.Rand, names []string, choiceCount, calculationCount int) []Question {
	matching := b.ByKnowledgePoints(names)

	var matchingChoice, matchingCalc []Question
	for _, q := range matching {
		switch q.Type {
		case TypeChoice:
			matchingChoice = append(matchingChoice, q)
		case TypeCalculation:
			matchingCalc = append(matchingCalc, q)
		}
	}

	selected := make([]Question, 0, choiceCount+calculationCount)
	selected = append(selected, b.drawWithBackfill(rng, matchingChoice, TypeChoice, choiceCount, nil)...)
	selected = append(selected, b.drawWithBackfill(rng, matchingCalc, TypeCalculation, calculationCount, selected)...)
	return selected
}

// drawWithBackfill 从 matching 中抽取至多 count 题，不足时从该类型
// 全集中排除已选后继续抽取。
func (b *Bank) drawWithBackfill(rng *rand.Rand, matching []Question, qtype string, count int, alreadySelected []Question) []Question {
	if count <= 0 {
		return nil
	}

	taken := make(map[string]bool, count)
	for _, q := range alreadySelected {
		taken[q.ID] = true
	}

	var out []Question
	if len(matching) > 0 {
		for _, q := range sampleQuestions(rng, matching, min(count, len(matching))) {
			if !taken[q.ID] {
				taken[q.ID] = true
				out = append(out, q)
			}
		}
	}

	if remaining := count - len(out); remaining > 0 {
		var pool []Question
		for _, q := range b.ByType(qtype) {
			if !taken[q.ID] {
				pool = append(pool, q)
			}
		}
		if len(pool) > 0 {
			for _, q := range sampleQuestions(rng, pool, min(remaining, len(pool))) {
				taken[q.ID] = true
				out = append(out, q)
			}
		}
	}
	return out
}

// sampleQuestions 无放回均匀抽样 n 题，不修改传入切片。
func sampleQuestions(rng *rand.Rand, pool []Question, n int) []Question {
	idx := rng.Perm(len(pool))[:n]
	out := make([]Question, 0, n)
	for _, i := range idx {
		out = append(out, pool[i])
	}
	return out
}
