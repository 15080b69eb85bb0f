package marker

import (
	"image"
	"image/color"
	"testing"

	"math_practice_backend/internal/answer"
	"math_practice_backend/internal/grading"
	"math_practice_backend/internal/practice"
	"math_practice_backend/internal/question"
	"math_practice_backend/internal/vision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func testSheet() practice.Sheet {
	return practice.Sheet{
		Title:      "有理数练习",
		PracticeID: "abc12345",
		Sections: []practice.SheetSection{
			{
				Name: "一、选择题",
				Type: question.TypeChoice,
				Questions: []practice.SheetQuestion{
					{ID: "qu_c1", Type: question.TypeChoice},
					{ID: "qu_c2", Type: question.TypeChoice},
				},
			},
			{
				Name: "二、计算题",
				Type: question.TypeCalculation,
				Questions: []practice.SheetQuestion{
					{ID: "qu_j1", Type: question.TypeCalculation},
					{ID: "qu_j2", Type: question.TypeCalculation},
				},
			},
		},
	}
}

func testAnswerSheet(ids ...string) *answer.Sheet {
	sheet := &answer.Sheet{Name: "张三", PracticeID: "abc12345"}
	section := answer.Section{Name: "一、选择题", Type: question.TypeChoice}
	for _, id := range ids {
		section.Questions = append(section.Questions, answer.Question{ID: id})
	}
	sheet.Sections = []answer.Section{section}
	return sheet
}

// containsColor 在矩形区域内查找指定颜色的不透明像素。
func containsColor(img *image.RGBA, rect image.Rectangle, want color.RGBA) bool {
	rect = rect.Intersect(img.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if img.RGBAAt(x, y) == want {
				return true
			}
		}
	}
	return false
}

func TestRenderCheckmark(t *testing.T) {
	green := color.RGBA{G: 255, A: 255}
	img := renderCheckmark(120, green)

	// 起笔点在折线上
	assert.Equal(t, green, img.RGBAAt(15, 60))
	// 第二段中点也在折线上
	assert.Equal(t, green, img.RGBAAt(79, 60))
	// 四角留白
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).A)
	assert.Equal(t, uint8(0), img.RGBAAt(119, 119).A)
}

func TestRenderCross(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	img := renderCross(120, red)

	// 两条对角线交于中心
	assert.Equal(t, red, img.RGBAAt(60, 60))
	// 端点在线上
	assert.Equal(t, red, img.RGBAAt(30, 30))
	assert.Equal(t, red, img.RGBAAt(90, 30))
	// 边距之外没有笔迹
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).A)
	assert.Equal(t, uint8(0), img.RGBAAt(119, 0).A)
}

func TestStampClampsToImage(t *testing.T) {
	m := New()
	dst := image.NewRGBA(image.Rect(0, 0, 200, 200))

	// 落点在左上角，符号应整体贴边而不是被裁掉
	m.stamp(dst, m.cross, 0, 0)

	red := color.RGBA{R: 255, A: 255}
	assert.True(t, containsColor(dst, image.Rect(0, 0, 120, 120), red))
	assert.False(t, containsColor(dst, image.Rect(120, 120, 200, 200), red))
}

func TestMarkImage_SequentialPairing(t *testing.T) {
	m := New()
	src := image.NewRGBA(image.Rect(0, 0, 600, 400))

	sheet := testSheet()
	studentAnswer := testAnswerSheet("qu_c1", "qu_j1")
	positions := []vision.MarkPosition{
		{QuestionNumber: "1", QuestionType: question.TypeChoice, X: 150, Y: 100},
		{QuestionNumber: "1", QuestionType: question.TypeCalculation, X: 150, Y: 300},
	}
	results := []grading.Result{
		{QuestionID: "qu_c1", QuestionType: question.TypeChoice, StudentID: "student_1", IsCorrect: true},
		{QuestionID: "qu_j1", QuestionType: question.TypeCalculation, StudentID: "student_1", OverallCorrect: boolPtr(false)},
	}

	dst, marked := m.MarkImage(src, results, sheet, positions, studentAnswer)
	require.Equal(t, 2, marked)

	green := color.RGBA{G: 255, A: 255}
	red := color.RGBA{R: 255, A: 255}
	assert.True(t, containsColor(dst, image.Rect(90, 40, 210, 160), green), "第一题判对应画对勾")
	assert.True(t, containsColor(dst, image.Rect(90, 240, 210, 360), red), "第二题判错应画叉号")
	assert.False(t, containsColor(dst, image.Rect(90, 40, 210, 160), red))
}

func TestMarkImage_SkipsMissingResult(t *testing.T) {
	m := New()
	src := image.NewRGBA(image.Rect(0, 0, 600, 400))

	sheet := testSheet()
	studentAnswer := testAnswerSheet("qu_c1", "qu_c2")
	positions := []vision.MarkPosition{
		{QuestionNumber: "1", QuestionType: question.TypeChoice, X: 150, Y: 100},
		{QuestionNumber: "2", QuestionType: question.TypeChoice, X: 150, Y: 300},
	}
	// 只有第一题有批改结果
	results := []grading.Result{
		{QuestionID: "qu_c1", QuestionType: question.TypeChoice, StudentID: "student_1", IsCorrect: true},
	}

	_, marked := m.MarkImage(src, results, sheet, positions, studentAnswer)
	assert.Equal(t, 1, marked)
}

func TestMarkImage_FallbackByTypeAndOrdinal(t *testing.T) {
	m := New()
	src := image.NewRGBA(image.Rect(0, 0, 600, 400))

	sheet := testSheet()
	// 答卷里有两道题而位置只有一个，数量对不上走兜底匹配
	studentAnswer := testAnswerSheet("qu_c1", "qu_j1")
	positions := []vision.MarkPosition{
		{QuestionNumber: "1", QuestionType: question.TypeCalculation, X: 300, Y: 200},
	}
	results := []grading.Result{
		{QuestionID: "qu_c1", QuestionType: question.TypeChoice, StudentID: "student_1", IsCorrect: false},
		{QuestionID: "qu_j1", QuestionType: question.TypeCalculation, StudentID: "student_1", OverallCorrect: boolPtr(true)},
	}

	dst, marked := m.MarkImage(src, results, sheet, positions, studentAnswer)
	require.Equal(t, 1, marked)

	// 计算题第一题判对，画的是对勾
	green := color.RGBA{G: 255, A: 255}
	assert.True(t, containsColor(dst, image.Rect(240, 140, 360, 260), green))
}

func TestMarkImage_FallbackIgnoresUnmatchedPosition(t *testing.T) {
	m := New()
	src := image.NewRGBA(image.Rect(0, 0, 600, 400))

	sheet := testSheet()
	positions := []vision.MarkPosition{
		{QuestionNumber: "9", QuestionType: question.TypeChoice, X: 300, Y: 200},
	}
	results := []grading.Result{
		{QuestionID: "qu_c1", QuestionType: question.TypeChoice, StudentID: "student_1", IsCorrect: true},
	}

	_, marked := m.MarkImage(src, results, sheet, positions, nil)
	assert.Equal(t, 0, marked)
}

func TestMarkImage_EstimatesWhenNoPositions(t *testing.T) {
	m := New()
	src := image.NewRGBA(image.Rect(0, 0, 1000, 800))

	sheet := testSheet()
	studentAnswer := testAnswerSheet("qu_c1", "qu_c2", "qu_j1", "qu_j2")
	results := []grading.Result{
		{QuestionID: "qu_c1", QuestionType: question.TypeChoice, StudentID: "student_1", IsCorrect: true},
		{QuestionID: "qu_c2", QuestionType: question.TypeChoice, StudentID: "student_1", IsCorrect: false},
		{QuestionID: "qu_j1", QuestionType: question.TypeCalculation, StudentID: "student_1", OverallCorrect: boolPtr(true)},
		{QuestionID: "qu_j2", QuestionType: question.TypeCalculation, StudentID: "student_1", OverallCorrect: boolPtr(false)},
	}

	_, marked := m.MarkImage(src, results, sheet, nil, studentAnswer)
	assert.Equal(t, 4, marked)
}

func TestEstimatePositions(t *testing.T) {
	positions := EstimatePositions(1000, 800, testSheet())
	require.Len(t, positions, 4)

	for _, pos := range positions {
		assert.Equal(t, 800, pos.X)
		assert.Equal(t, 150, pos.Width)
		assert.Equal(t, 200, pos.Height)
	}
	assert.Equal(t, []int{100, 300, 500, 700}, []int{positions[0].Y, positions[1].Y, positions[2].Y, positions[3].Y})

	// 序号按章节重新起算
	assert.Equal(t, "1", positions[0].QuestionNumber)
	assert.Equal(t, "2", positions[1].QuestionNumber)
	assert.Equal(t, "1", positions[2].QuestionNumber)
	assert.Equal(t, question.TypeChoice, positions[0].QuestionType)
	assert.Equal(t, question.TypeCalculation, positions[2].QuestionType)
}

func TestEstimatePositions_EmptySheet(t *testing.T) {
	assert.Nil(t, EstimatePositions(1000, 800, practice.Sheet{}))
}
