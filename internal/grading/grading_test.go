package grading

import (
	"testing"

	"math_practice_backend/internal/knowledge"
	"math_practice_backend/internal/question"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func choiceResult(id, outline string, correct bool, explanation string) Result {
	return Result{
		QuestionID:      id,
		QuestionType:    question.TypeChoice,
		QuestionText:    "题目" + id,
		KnowledgePoints: []string{outline},
		IsCorrect:       correct,
		Explanation:     explanation,
	}
}

func calculationResult(id, outline string, overall *bool) Result {
	return Result{
		QuestionID:      id,
		QuestionType:    question.TypeCalculation,
		QuestionText:    "题目" + id,
		KnowledgePoints: []string{outline},
		OverallCorrect:  overall,
	}
}

func TestResult_Correct(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   bool
	}{
		{"选择题判对", Result{QuestionType: question.TypeChoice, IsCorrect: true}, true},
		{"选择题判错", Result{QuestionType: question.TypeChoice, IsCorrect: false}, false},
		{"计算题判对", Result{QuestionType: question.TypeCalculation, OverallCorrect: boolPtr(true)}, true},
		{"计算题判错", Result{QuestionType: question.TypeCalculation, OverallCorrect: boolPtr(false)}, false},
		{"计算题缺结论不回退IsCorrect", Result{QuestionType: question.TypeCalculation, IsCorrect: true}, false},
		{"未知题型用IsCorrect", Result{QuestionType: "essay", IsCorrect: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Correct())
		})
	}
}

func TestGradeChoice(t *testing.T) {
	choices := []question.Choice{
		{ID: "A", Content: "-5", IsCorrect: true},
		{ID: "B", Content: "5", Explanation: "忽略了负号"},
		{ID: "C", Content: "1"},
	}

	correct := GradeChoice("A", "A", choices)
	assert.True(t, correct.IsCorrect)
	assert.Equal(t, "A", correct.StudentAnswer)
	assert.Equal(t, "A", correct.CorrectAnswer)
	assert.Empty(t, correct.Explanation)

	wrong := GradeChoice("B", "A", choices)
	assert.False(t, wrong.IsCorrect)
	assert.Equal(t, "忽略了负号", wrong.Explanation)

	// 错误选项没写解析时给通用提示
	noExplanation := GradeChoice("C", "A", choices)
	assert.False(t, noExplanation.IsCorrect)
	assert.Equal(t, "答案错误", noExplanation.Explanation)

	// 学生选项不在选项表中，不给解析
	unrecognized := GradeChoice("E", "A", choices)
	assert.False(t, unrecognized.IsCorrect)
	assert.Empty(t, unrecognized.Explanation)
}

func TestCalculationGrade_Result(t *testing.T) {
	grade := CalculationGrade{
		OverallCorrect:     false,
		FinalAnswerCorrect: true,
		StepsAnalysis: []StepAnalysis{
			{StepIndex: 0, StudentStep: "原式 = -2 + 3", IsCorrect: true},
			{StepIndex: 1, StudentStep: "= -1", IsCorrect: false, Explanation: "符号处理错误"},
		},
		FinalAnswerExplanation: "最终答案符号有误",
	}

	r := grade.Result()
	require.NotNil(t, r.OverallCorrect)
	assert.False(t, *r.OverallCorrect)
	require.NotNil(t, r.FinalAnswerCorrect)
	assert.True(t, *r.FinalAnswerCorrect)
	assert.Len(t, r.StepsAnalysis, 2)
	assert.False(t, r.Correct())
}

func TestFallbackCalculationGrade(t *testing.T) {
	grade := FallbackCalculationGrade()
	assert.False(t, grade.OverallCorrect)
	assert.False(t, grade.FinalAnswerCorrect)
	assert.NotNil(t, grade.StepsAnalysis)
	assert.Empty(t, grade.StepsAnalysis)
	assert.Equal(t, "批改过程中出现错误", grade.FinalAnswerExplanation)
	assert.False(t, grade.Result().Correct())
}

func TestAnalyzeErrors_RankingAndTop(t *testing.T) {
	results := []Result{
		choiceResult("qu_1", "有理数加法法则", false, "同号相加处理错误"),
		choiceResult("qu_2", "有理数加法法则", false, "异号相加处理错误"),
		choiceResult("qu_3", "有理数减法法则", false, "减法转加法时没有变号"),
		choiceResult("qu_4", "倒数", true, ""),
	}

	analysis := AnalyzeErrors(results)
	require.Len(t, analysis.ErrorKnowledgePoints, 2)

	first := analysis.ErrorKnowledgePoints[0]
	assert.Equal(t, "有理数加法法则", first.Outline)
	assert.Equal(t, 2, first.ErrorCount)
	assert.Equal(t, []string{"同号相加处理错误", "异号相加处理错误"}, first.ErrorExamples)
	kp, ok := knowledge.Lookup("有理数加法法则")
	require.True(t, ok)
	assert.Equal(t, kp.Detail, first.Detail)

	require.Len(t, analysis.TopErrorPoints, 2)
	assert.Equal(t, []string{"有理数加法法则", "有理数减法法则"}, analysis.TopOutlines())
}

func TestAnalyzeErrors_TieKeepsFirstSeenOrder(t *testing.T) {
	results := []Result{
		choiceResult("qu_1", "乘法运算定律", false, ""),
		choiceResult("qu_2", "倒数", false, ""),
	}

	analysis := AnalyzeErrors(results)
	assert.Equal(t, []string{"乘法运算定律", "倒数"}, analysis.TopOutlines())
}

func TestAnalyzeErrors_ExamplesDedupedAndCapped(t *testing.T) {
	results := []Result{
		choiceResult("qu_1", "有理数乘法法则", false, "解析一"),
		choiceResult("qu_2", "有理数乘法法则", false, "解析一"),
		choiceResult("qu_3", "有理数乘法法则", false, "解析二"),
		choiceResult("qu_4", "有理数乘法法则", false, "解析三"),
		choiceResult("qu_5", "有理数乘法法则", false, "解析四"),
	}

	analysis := AnalyzeErrors(results)
	require.Len(t, analysis.ErrorKnowledgePoints, 1)
	ep := analysis.ErrorKnowledgePoints[0]
	assert.Equal(t, 5, ep.ErrorCount)
	assert.Equal(t, []string{"解析一", "解析二", "解析三"}, ep.ErrorExamples)
}

func TestAnalyzeErrors_CalculationMissingConclusionCounts(t *testing.T) {
	// 计算题缺 overall_correct 视为判错，参与错误统计
	results := []Result{calculationResult("qu_1", "乘方法则运算", nil)}

	analysis := AnalyzeErrors(results)
	require.Len(t, analysis.ErrorKnowledgePoints, 1)
	assert.Equal(t, "乘方法则运算", analysis.ErrorKnowledgePoints[0].Outline)
}

func TestAnalyzeErrors_UnknownOutlineHasEmptyDetail(t *testing.T) {
	results := []Result{choiceResult("qu_1", "不存在的知识点", false, "")}

	analysis := AnalyzeErrors(results)
	require.Len(t, analysis.ErrorKnowledgePoints, 1)
	assert.Empty(t, analysis.ErrorKnowledgePoints[0].Detail)
}

func TestAnalyzeErrors_NoErrors(t *testing.T) {
	results := []Result{
		choiceResult("qu_1", "有理数加法法则", true, ""),
		calculationResult("qu_2", "倒数", boolPtr(true)),
	}

	analysis := AnalyzeErrors(results)
	assert.NotNil(t, analysis.ErrorKnowledgePoints)
	assert.Empty(t, analysis.ErrorKnowledgePoints)
	assert.NotNil(t, analysis.TopErrorPoints)
	assert.Empty(t, analysis.TopErrorPoints)
}
