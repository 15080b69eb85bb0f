package grading

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"math_practice_backend/internal/answer"
	"math_practice_backend/internal/question"
	"math_practice_backend/internal/vision"
)

type studentGroup struct {
	id      string
	name    string
	results []Result
}

type reportPosition struct {
	questionNumber string
	bbox           vision.BBox
	answerBBox     vision.BBox
	confidence     float64
}

// GenerateReport 生成Markdown批改报告：总体统计、每个学生的正确率
// 表格、题目×学生的对错矩阵、题目详情，以及检测到的题目位置表。
// 学生顺序与批改记录中首次出现的顺序一致。
func GenerateReport(results []Result, sheets []answer.Sheet, now time.Time) string {
	if len(results) == 0 {
		return "## 📊 批改报告\n\n没有批改结果"
	}

	var groups []*studentGroup
	groupByID := map[string]*studentGroup{}
	for _, r := range results {
		id := r.StudentID
		if id == "" {
			id = "unknown"
		}
		g := groupByID[id]
		if g == nil {
			name := r.StudentName
			if name == "" {
				name = "未知学生"
			}
			g = &studentGroup{id: id, name: name}
			groupByID[id] = g
			groups = append(groups, g)
		}
		g.results = append(g.results, r)
	}

	positionsByStudent := map[string][]reportPosition{}
	var positionOrder []string
	for _, sheet := range sheets {
		id := sheet.StudentID
		if id == "" {
			id = "unknown"
		}
		var positions []reportPosition
		for _, section := range sheet.Sections {
			for i, q := range section.Questions {
				if q.Positions == nil {
					continue
				}
				positions = append(positions, reportPosition{
					questionNumber: strconv.Itoa(i + 1),
					bbox:           q.Positions.BBox2D,
					answerBBox:     q.Positions.AnswerBBox2D,
					confidence:     q.Positions.Confidence,
				})
			}
		}
		if len(positions) > 0 {
			positionsByStudent[id] = positions
			positionOrder = append(positionOrder, id)
		}
	}

	totalQuestions := len(results)
	totalCorrect := 0
	for _, r := range results {
		if r.Correct() {
			totalCorrect++
		}
	}

	var b strings.Builder
	b.WriteString("## 📊 批改报告\n\n")
	fmt.Fprintf(&b, "**批改时间:** %s\n\n", now.Format("2006-01-02 15:04:05"))

	b.WriteString("### 📈 总体统计\n\n")
	fmt.Fprintf(&b, "- **学生数量:** %d\n", len(groups))
	fmt.Fprintf(&b, "- **总题数:** %d\n", totalQuestions)
	fmt.Fprintf(&b, "- **总正确数:** %d\n", totalCorrect)
	fmt.Fprintf(&b, "- **总体正确率:** %s%%\n\n", accuracy(totalCorrect, totalQuestions))

	b.WriteString("### 👥 学生答题情况\n\n")
	b.WriteString("| 学生 | 正确题数 | 总题数 | 正确率 |\n")
	b.WriteString("|------|----------|--------|--------|\n")
	for _, g := range groups {
		correct := 0
		for _, r := range g.results {
			if r.Correct() {
				correct++
			}
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %s%% |\n", g.name, correct, len(g.results), accuracy(correct, len(g.results)))
	}
	b.WriteString("\n")

	b.WriteString("### 📝 详细答题情况\n\n")

	type reportQuestion struct {
		id   string
		text string
	}
	seen := map[string]bool{}
	var choiceQuestions, calculationQuestions []reportQuestion
	for _, r := range results {
		if r.QuestionID == "" || seen[r.QuestionID] {
			continue
		}
		seen[r.QuestionID] = true
		switch r.QuestionType {
		case question.TypeChoice:
			choiceQuestions = append(choiceQuestions, reportQuestion{id: r.QuestionID, text: r.QuestionText})
		case question.TypeCalculation:
			calculationQuestions = append(calculationQuestions, reportQuestion{id: r.QuestionID, text: r.QuestionText})
		}
	}
	allQuestions := append(append([]reportQuestion{}, choiceQuestions...), calculationQuestions...)

	if len(allQuestions) > 0 {
		b.WriteString("| 学生 |")
		for i := range allQuestions {
			fmt.Fprintf(&b, " 题目%d |", i+1)
		}
		b.WriteString("\n|------|")
		for range allQuestions {
			b.WriteString("--------|")
		}
		b.WriteString("\n")

		for _, g := range groups {
			fmt.Fprintf(&b, "| %s |", g.name)
			byQuestion := map[string]Result{}
			for _, r := range g.results {
				byQuestion[r.QuestionID] = r
			}
			for _, q := range allQuestions {
				if r, ok := byQuestion[q.id]; ok {
					if r.Correct() {
						b.WriteString(" ✅ |")
					} else {
						b.WriteString(" ❌ |")
					}
				} else {
					b.WriteString(" - |")
				}
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("#### 题目详情\n\n")
	for i, q := range allQuestions {
		fmt.Fprintf(&b, "**题目%d:** %s\n", i+1, q.text)
	}
	b.WriteString("\n")

	if len(positionOrder) > 0 {
		b.WriteString("### 📍 题目位置信息\n\n")
		b.WriteString("以下是通过AI检测到的题目在图片中的位置信息：\n\n")

		for _, id := range positionOrder {
			name := "未知学生"
			if g := groupByID[id]; g != nil {
				name = g.name
			}
			fmt.Fprintf(&b, "**%s:**\n", name)
			b.WriteString("| 题目 | 题目区域坐标 (x1,y1,x2,y2) | 答题区域坐标 | 置信度 |\n")
			b.WriteString("|------|----------|----------|--------|\n")
			for _, pos := range positionsByStudent[id] {
				fmt.Fprintf(&b, "| %s | %s | %s | %.2f |\n",
					pos.questionNumber, formatBBox(pos.bbox), formatBBox(pos.answerBBox), pos.confidence)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func formatBBox(b vision.BBox) string {
	return fmt.Sprintf("(%.3f,%.3f,%.3f,%.3f)", b[0], b[1], b[2], b[3])
}

// accuracy 正确率百分数，保留1位小数。
func accuracy(correct, total int) string {
	if total == 0 {
		return "0"
	}
	v := math.Round(float64(correct)/float64(total)*1000) / 10
	return strconv.FormatFloat(v, 'f', 1, 64)
}
