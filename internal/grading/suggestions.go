package grading

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"math_practice_backend/internal/question"
)

// 计算题错误步骤按解析文本归类出的错误类型。
const (
	mistakeSign       = "符号错误"
	mistakeOrder      = "运算顺序错误"
	mistakeArithmetic = "计算错误"
)

// classifyStepError 按步骤解析文本归类错误类型，归不进任何一类
// 返回空串。
func classifyStepError(explanation string) string {
	switch {
	case strings.Contains(explanation, "符号"):
		return mistakeSign
	case strings.Contains(explanation, "运算顺序"), strings.Contains(explanation, "优先级"):
		return mistakeOrder
	case strings.Contains(explanation, "计算"):
		return mistakeArithmetic
	default:
		return ""
	}
}

// TeachingSuggestions 根据批改记录生成课堂讲解建议。先找知识盲点和
// 高频错误模式，再按固定优先级拼装编号建议；没有任何错误模式时给
// 通用建议。
func TeachingSuggestions(results []Result) string {
	var choiceErrors, calculationErrors []Result
	for _, r := range results {
		if r.Correct() {
			continue
		}
		switch r.QuestionType {
		case question.TypeChoice:
			choiceErrors = append(choiceErrors, r)
		case question.TypeCalculation:
			calculationErrors = append(calculationErrors, r)
		}
	}

	commonMistakes := identifyCommonMistakes(choiceErrors, calculationErrors)
	knowledgeGaps := identifyKnowledgeGaps(results)

	var suggestions []string
	count := 1

	if len(knowledgeGaps) > 0 {
		topic := strings.SplitN(knowledgeGaps[0], "相关", 2)[0]
		suggestions = append(suggestions,
			fmt.Sprintf("%d. 重点突破：针对%s进行专项训练，通过典型例题反复练习。", count, topic))
		count++
	}

	if containsMistake(commonMistakes, mistakeSign) {
		suggestions = append(suggestions,
			fmt.Sprintf("%d. 符号强化：专门练习符号运算，要求学生先确定符号再计算，避免符号错误。", count))
		count++
	}
	if containsMistake(commonMistakes, mistakeOrder) {
		suggestions = append(suggestions,
			fmt.Sprintf("%d. 口诀记忆：总结运算顺序口诀（如'先括号，再乘方，乘除加减不乱忙'），帮助学生记忆。", count))
		count++
	}
	if containsMistake(commonMistakes, mistakeArithmetic) {
		suggestions = append(suggestions,
			fmt.Sprintf("%d. 步骤化教学：带着学生一步一步演算，要求写清每一步，避免心算跳步。", count))
		count++
	}

	switch {
	case len(choiceErrors) > 0 && len(calculationErrors) > 0:
		suggestions = append(suggestions,
			fmt.Sprintf("%d. 错因讲解：用学生的典型错题做反例分析，让他们自己找错误并改正。", count))
	case len(choiceErrors) > 0:
		suggestions = append(suggestions,
			fmt.Sprintf("%d. 概念辨析：通过对比分析易混淆概念，设计变式练习加深理解。", count))
	case len(calculationErrors) > 0:
		suggestions = append(suggestions,
			fmt.Sprintf("%d. 验算习惯：培养学生逐步验算的习惯，提高计算准确性。", count))
	}

	if len(suggestions) == 0 {
		suggestions = append(suggestions,
			fmt.Sprintf("%d. 基础巩固：加强基础概念教学，通过反复练习巩固知识点。", count))
	}

	return strings.Join(suggestions, "\n")
}

func containsMistake(mistakes []string, mistakeType string) bool {
	for _, m := range mistakes {
		if strings.Contains(m, mistakeType) {
			return true
		}
	}
	return false
}

// identifyCommonMistakes 识别高频错误模式：被多次错选的选项、
// 出现多次的计算题错误类型。
func identifyCommonMistakes(choiceErrors, calculationErrors []Result) []string {
	var mistakes []string

	if len(choiceErrors) > 0 {
		wrongChoiceCounts := map[string]int{}
		var wrongChoiceOrder []string
		for _, r := range choiceErrors {
			if _, seen := wrongChoiceCounts[r.StudentAnswer]; !seen {
				wrongChoiceOrder = append(wrongChoiceOrder, r.StudentAnswer)
			}
			wrongChoiceCounts[r.StudentAnswer]++
		}

		mostCommon, mostCount := "", 0
		for _, choice := range wrongChoiceOrder {
			if wrongChoiceCounts[choice] > mostCount {
				mostCommon, mostCount = choice, wrongChoiceCounts[choice]
			}
		}
		if mostCount > 1 {
			mistakes = append(mistakes, fmt.Sprintf("选择题中选项%s被错误选择%d次", mostCommon, mostCount))
		}
	}

	if len(calculationErrors) > 0 {
		typeCounts := map[string]int{}
		for _, r := range calculationErrors {
			for _, step := range r.StepsAnalysis {
				if step.IsCorrect {
					continue
				}
				if errType := classifyStepError(step.Explanation); errType != "" {
					typeCounts[errType]++
				}
			}
		}
		for _, errType := range []string{mistakeSign, mistakeOrder, mistakeArithmetic} {
			if count := typeCounts[errType]; count > 1 {
				mistakes = append(mistakes, fmt.Sprintf("计算题中%s出现%d次", errType, count))
			}
		}
	}

	return mistakes
}

// identifyKnowledgeGaps 识别知识盲点：错误次数大于1的知识点，
// 按次数降序取前3个。
func identifyKnowledgeGaps(results []Result) []string {
	counts := map[string]int{}
	var order []string
	for _, r := range results {
		if r.Correct() {
			continue
		}
		for _, outline := range r.KnowledgePoints {
			if outline == "" {
				continue
			}
			if _, seen := counts[outline]; !seen {
				order = append(order, outline)
			}
			counts[outline]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	var gaps []string
	for i, outline := range order {
		if i == 3 {
			break
		}
		if counts[outline] > 1 {
			gaps = append(gaps, outline+"相关题目错误"+strconv.Itoa(counts[outline])+"次")
		}
	}
	return gaps
}
