package vision

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertCoordsToOriginal(t *testing.T) {
	original := [2]int{1000, 1500}
	resized := [2]int{1000, 1000}

	got := ConvertCoordsToOriginal(BBox{100, 200, 300, 400}, original, resized)
	assert.Equal(t, BBox{100, 300, 300, 600}, got)

	// 小数坐标向零取整
	got = ConvertCoordsToOriginal(BBox{10.9, 10.9, 20.9, 20.9}, original, resized)
	assert.Equal(t, BBox{10, 16, 20, 31}, got)
}

func TestConvertCoordsToOriginal_RoundTrip(t *testing.T) {
	original := [2]int{1000, 1500}
	resized := [2]int{1000, 1000}

	boxes := []BBox{
		{0, 0, 999, 999},
		{123, 457, 789, 881},
		{37, 91, 503, 677},
	}
	for _, box := range boxes {
		toOriginal := ConvertCoordsToOriginal(box, original, resized)
		back := ConvertCoordsToOriginal(toOriginal, resized, original)
		for i := range box {
			assert.InDeltaf(t, box[i], back[i], 1, "坐标 %d 往返误差超过1像素: %v -> %v -> %v", i, box, toOriginal, back)
		}
	}
}

func TestConvertCoordsToOriginal_InvalidSizes(t *testing.T) {
	box := BBox{10, 20, 30, 40}
	assert.Equal(t, box, ConvertCoordsToOriginal(box, [2]int{0, 0}, [2]int{1000, 1000}))
	assert.Equal(t, box, ConvertCoordsToOriginal(box, [2]int{1000, 1000}, [2]int{0, 1000}))
}

func TestAreasToOriginal(t *testing.T) {
	areas := []QuestionArea{
		{
			QuestionNumber: "1",
			BBox2D:         BBox{100, 100, 500, 300},
			AnswerBBox2D:   BBox{100, 220, 500, 300},
			OriginalSize:   [2]int{2000, 3000},
			ResizedSize:    [2]int{1000, 1000},
		},
		{
			// 没有尺寸信息的区域保持不变
			QuestionNumber: "2",
			BBox2D:         BBox{10, 10, 20, 20},
		},
	}

	converted := AreasToOriginal(areas)
	assert.Equal(t, BBox{200, 300, 1000, 900}, converted[0].BBox2D)
	assert.Equal(t, BBox{200, 660, 1000, 900}, converted[0].AnswerBBox2D)
	assert.Equal(t, BBox{10, 10, 20, 20}, converted[1].BBox2D)

	// 原切片不被修改
	assert.Equal(t, BBox{100, 100, 500, 300}, areas[0].BBox2D)
}

func TestMarkPositions(t *testing.T) {
	areas := []QuestionArea{{
		QuestionNumber: "1",
		QuestionType:   "choice",
		BBox2D:         BBox{100, 100, 500, 300},
		AnswerBBox2D:   BBox{100, 220, 500, 300},
		Confidence:     0.9,
		OriginalSize:   [2]int{1000, 1000},
		ResizedSize:    [2]int{1000, 1000},
	}}

	rng := rand.New(rand.NewSource(1))
	positions := MarkPositions(rng, 1000, 1000, areas)
	require.Len(t, positions, 1)

	pos := positions[0]
	assert.Equal(t, "1", pos.QuestionNumber)
	assert.Equal(t, "choice", pos.QuestionType)
	// x = 水平中点 + [0,100] 随机偏移，y = 垂直中点
	assert.GreaterOrEqual(t, pos.X, 300)
	assert.LessOrEqual(t, pos.X, 400)
	assert.Equal(t, 200, pos.Y)
	assert.Equal(t, 100, pos.Width)
	assert.Equal(t, 100, pos.Height)
	assert.InDelta(t, 0.9, pos.Confidence, 1e-9)
}

func TestMarkPositions_Reproducible(t *testing.T) {
	areas := []QuestionArea{
		{QuestionNumber: "1", BBox2D: BBox{0, 0, 100, 100}, OriginalSize: [2]int{500, 500}, ResizedSize: [2]int{500, 500}},
		{QuestionNumber: "2", BBox2D: BBox{0, 100, 100, 200}, OriginalSize: [2]int{500, 500}, ResizedSize: [2]int{500, 500}},
	}

	first := MarkPositions(rand.New(rand.NewSource(42)), 500, 500, areas)
	second := MarkPositions(rand.New(rand.NewSource(42)), 500, 500, areas)
	assert.Equal(t, first, second)
}

func TestMarkPositions_ConvertsWhenTargetDiffers(t *testing.T) {
	areas := []QuestionArea{{
		QuestionNumber: "1",
		BBox2D:         BBox{100, 100, 300, 300},
		AnswerBBox2D:   BBox{100, 220, 300, 300},
		OriginalSize:   [2]int{2000, 2000},
		ResizedSize:    [2]int{1000, 1000},
	}}

	positions := MarkPositions(rand.New(rand.NewSource(1)), 2000, 2000, areas)
	require.Len(t, positions, 1)
	assert.Equal(t, BBox{200, 200, 600, 600}, positions[0].BBox2D)
}

func TestMarkPositions_NoConversionWhenTargetMatchesResize(t *testing.T) {
	areas := []QuestionArea{{
		QuestionNumber: "1",
		BBox2D:         BBox{100.5, 100.5, 300.5, 300.5},
		OriginalSize:   [2]int{2000, 2000},
		ResizedSize:    [2]int{1000, 1000},
	}}

	positions := MarkPositions(rand.New(rand.NewSource(1)), 1000, 1000, areas)
	require.Len(t, positions, 1)
	assert.Equal(t, BBox{100.5, 100.5, 300.5, 300.5}, positions[0].BBox2D)
}

func TestMarkPositions_DefaultConfidence(t *testing.T) {
	areas := []QuestionArea{{QuestionNumber: "1", BBox2D: BBox{0, 0, 10, 10}}}
	positions := MarkPositions(rand.New(rand.NewSource(1)), 100, 100, areas)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.5, positions[0].Confidence, 1e-9)
}

func TestParseDetection(t *testing.T) {
	data := []byte(`{
		"question_areas": [
			{"question_number": "1", "question_type": "choice", "bbox_2d": [100, 100, 500, 300], "answer_bbox_2d": [100, 240, 500, 300], "confidence": 0.95},
			{"question_number": 2, "bbox_2d": [100, 350, 500, 550]}
		]
	}`)

	areas, err := ParseDetection(data, 2000, 3000, 1000)
	require.NoError(t, err)
	require.Len(t, areas, 2)

	assert.Equal(t, "1", areas[0].QuestionNumber)
	assert.Equal(t, "choice", areas[0].QuestionType)
	assert.InDelta(t, 0.95, areas[0].Confidence, 1e-9)
	assert.Equal(t, [2]int{2000, 3000}, areas[0].OriginalSize)
	assert.Equal(t, [2]int{1000, 1000}, areas[0].ResizedSize)

	// 题号可为数字，缺失字段补默认值
	assert.Equal(t, "2", areas[1].QuestionNumber)
	assert.Equal(t, "unknown", areas[1].QuestionType)
	assert.InDelta(t, 0.8, areas[1].Confidence, 1e-9)
	// 默认答题区域为题目区域的下40%
	assert.Equal(t, BBox{100, 470, 500, 550}, areas[1].AnswerBBox2D)
}

func TestParseDetection_StringConfidence(t *testing.T) {
	data := []byte(`{"question_areas": [{"question_number": "1", "bbox_2d": [0, 0, 10, 10], "confidence": "0.6"}]}`)
	areas, err := ParseDetection(data, 100, 100, 1000)
	require.NoError(t, err)
	require.Len(t, areas, 1)
	assert.InDelta(t, 0.6, areas[0].Confidence, 1e-9)
}

func TestParseDetection_BadJSON(t *testing.T) {
	_, err := ParseDetection([]byte("not json"), 100, 100, 1000)
	assert.Error(t, err)
}

func TestQuestionArea_Validate(t *testing.T) {
	valid := QuestionArea{
		QuestionNumber: "1",
		BBox2D:         BBox{0, 0, 10, 10},
		AnswerBBox2D:   BBox{0, 6, 10, 10},
	}
	assert.NoError(t, valid.Validate())

	missingNumber := valid
	missingNumber.QuestionNumber = " "
	assert.Error(t, missingNumber.Validate())

	flipped := valid
	flipped.BBox2D = BBox{10, 0, 0, 10}
	assert.Error(t, flipped.Validate())

	flippedAnswer := valid
	flippedAnswer.AnswerBBox2D = BBox{0, 10, 10, 6}
	assert.Error(t, flippedAnswer.Validate())
}

func TestDefaultAnswerBBox(t *testing.T) {
	b := BBox{100, 100, 500, 300}
	got := b.DefaultAnswerBBox()
	assert.Equal(t, BBox{100, 100 + math.Trunc(200*0.6), 500, 300}, got)
}
