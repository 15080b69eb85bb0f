package practice

import (
	"math/rand"
	"strings"
	"testing"

	"math_practice_backend/internal/question"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	bank, err := question.NewBank()
	require.NoError(t, err)
	return NewAssembler(bank)
}

func TestBuild_SectionShape(t *testing.T) {
	a := newTestAssembler(t)
	rng := rand.New(rand.NewSource(7))

	p := a.Build(rng, "有理数计算练习", []string{"有理数加法法则", "有理数乘法法则"}, 3, 2)

	require.Len(t, p.Sections, 2)
	assert.Equal(t, "一、选择题", p.Sections[0].Name)
	assert.Equal(t, question.TypeChoice, p.Sections[0].Type)
	assert.Len(t, p.Sections[0].QuestionIDs, 3)
	assert.Equal(t, "二、计算题", p.Sections[1].Name)
	assert.Equal(t, question.TypeCalculation, p.Sections[1].Type)
	assert.Len(t, p.Sections[1].QuestionIDs, 2)
	assert.Len(t, p.PracticeID, 8)

	seen := map[string]bool{}
	for _, s := range p.Sections {
		for _, id := range s.QuestionIDs {
			assert.False(t, seen[id], "question %s selected twice", id)
			seen[id] = true
		}
	}
}

func TestBuild_OmitsEmptySections(t *testing.T) {
	a := newTestAssembler(t)

	onlyCalc := a.Build(rand.New(rand.NewSource(1)), "计算专项", []string{"有理数混合运算"}, 0, 2)
	require.Len(t, onlyCalc.Sections, 1)
	assert.Equal(t, "二、计算题", onlyCalc.Sections[0].Name)

	onlyChoice := a.Build(rand.New(rand.NewSource(1)), "选择专项", []string{"有理数混合运算"}, 2, 0)
	require.Len(t, onlyChoice.Sections, 1)
	assert.Equal(t, "一、选择题", onlyChoice.Sections[0].Name)
}

func TestBuild_FreshPracticeID(t *testing.T) {
	a := newTestAssembler(t)
	first := a.Build(rand.New(rand.NewSource(3)), "练习", []string{"倒数"}, 1, 1)
	second := a.Build(rand.New(rand.NewSource(3)), "练习", []string{"倒数"}, 1, 1)
	assert.NotEqual(t, first.PracticeID, second.PracticeID)
}

func TestSnapshot_MatchesPractice(t *testing.T) {
	a := newTestAssembler(t)
	rng := rand.New(rand.NewSource(11))
	p := a.Build(rng, "有理数计算练习", []string{"有理数减法法则", "乘方法则运算"}, 2, 2)

	sheet := a.Snapshot(p)
	assert.Equal(t, p.Title, sheet.Title)
	assert.Equal(t, p.PracticeID, sheet.PracticeID)
	require.Len(t, sheet.Sections, len(p.Sections))

	for i, section := range p.Sections {
		ss := sheet.Sections[i]
		assert.Equal(t, section.Name, ss.Name)
		assert.Equal(t, section.Type, ss.Type)
		assert.Equal(t, section.QuestionIDs, ss.QuestionIDs)

		var ids []string
		for _, q := range ss.Questions {
			ids = append(ids, q.ID)
			assert.Equal(t, section.Type, q.Metadata.Category)
			assert.Equal(t, section.Type, q.Type)
			assert.NotEmpty(t, q.Question)
			assert.NotEmpty(t, q.KnowledgePoints)
		}
		assert.Equal(t, section.QuestionIDs, ids, "快照题目顺序必须与选题顺序一致")
	}
}

func TestSnapshot_AnswerProjection(t *testing.T) {
	a := newTestAssembler(t)
	p := a.Build(rand.New(rand.NewSource(5)), "练习", nil, 4, 4)
	sheet := a.Snapshot(p)

	for _, q := range sheet.FlattenQuestions() {
		switch q.Type {
		case question.TypeChoice:
			require.NotEmpty(t, q.Choices)
			assert.Empty(t, q.SolutionSteps)
			found := false
			for _, c := range q.Choices {
				if c.ID == q.Answer {
					found = true
					assert.True(t, c.IsCorrect)
				}
			}
			assert.True(t, found, "选择题答案 %q 必须是选项之一", q.Answer)
		case question.TypeCalculation:
			require.NotEmpty(t, q.SolutionSteps)
			assert.Empty(t, q.Choices)
			assert.Equal(t, ExtractFinalAnswer(q.SolutionSteps), q.Answer)
		}
	}
}

func TestExtractFinalAnswer(t *testing.T) {
	tests := []struct {
		name  string
		steps []string
		want  string
	}{
		{"等号结尾", []string{"原式 = -9 + 9", "= 0"}, "0"},
		{"负小数", []string{"a × b = (-2/5) × 1", "= -0.4"}, "-0.4"},
		{"取第一个匹配", []string{"原式 = 3 + 4"}, "3"},
		{"无等号", []string{"-12"}, "-12"},
		{"无数字", []string{"答案见解析"}, ""},
		{"空步骤", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var steps []question.SolutionStep
			for _, s := range tt.steps {
				steps = append(steps, question.SolutionStep{Step: s})
			}
			assert.Equal(t, tt.want, ExtractFinalAnswer(steps))
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	a := newTestAssembler(t)
	p := a.Build(rand.New(rand.NewSource(9)), "有理数计算练习", nil, 2, 1)
	sheet := a.Snapshot(p)

	out, err := RenderMarkdown(sheet)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# 有理数计算练习\n"))
	assert.Contains(t, out, "\n## 一、选择题\n")
	assert.Contains(t, out, "\n## 二、计算题\n")
	assert.Contains(t, out, "\n1. ")
	assert.Contains(t, out, "\n   A. ")
	for _, q := range sheet.FlattenQuestions() {
		assert.Contains(t, out, q.Question)
		for _, step := range q.SolutionSteps {
			assert.NotContains(t, out, step.Step, "学生卷不能出现解题步骤")
		}
	}
}

func TestSheet_SectionTypeOrdinal(t *testing.T) {
	a := newTestAssembler(t)
	p := a.Build(rand.New(rand.NewSource(13)), "练习", nil, 2, 2)
	sheet := a.Snapshot(p)

	for _, section := range sheet.Sections {
		for i, q := range section.Questions {
			typ, ord := sheet.SectionTypeOrdinal(q.ID)
			assert.Equal(t, q.Type, typ)
			assert.Equal(t, i+1, ord)
		}
	}

	typ, ord := sheet.SectionTypeOrdinal("qu_missing")
	assert.Empty(t, typ)
	assert.Zero(t, ord)
}

func TestSheet_KnowledgePointOutlines(t *testing.T) {
	sheet := Sheet{Sections: []SheetSection{{
		Questions: []SheetQuestion{
			{KnowledgePoints: []question.KnowledgePointRef{{Outline: "有理数加法法则"}, {Outline: "加法运算定律"}}},
			{KnowledgePoints: []question.KnowledgePointRef{{Outline: "有理数加法法则"}}},
		},
	}}}
	assert.Equal(t, []string{"有理数加法法则", "加法运算定律"}, sheet.KnowledgePointOutlines())
}

func TestTitleForRegeneration(t *testing.T) {
	got := TitleForRegeneration([]string{"有理数加法法则", "倒数"})
	assert.Equal(t, "针对性练习 - 有理数加法法则, 倒数", got)
}
