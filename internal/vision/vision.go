// Package vision 处理答题图片的题目区域检测结果：解析AI返回的区域
// 数据、把resize坐标还原为原图坐标、生成批改标记位置。
package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

// BBox 矩形区域 [x1, y1, x2, y2]，像素坐标。
type BBox [4]float64

// DefaultAnswerBBox 未检测到答题区域时的默认值：题目区域的下40%。
func (b BBox) DefaultAnswerBBox() BBox {
	return BBox{b[0], b[1] + math.Trunc((b[3]-b[1])*0.6), b[2], b[3]}
}

// QuestionArea 单个题目区域。坐标基于resize后的图片，
// OriginalSize/ResizedSize 用于还原到原图。
type QuestionArea struct {
	QuestionNumber string  `json:"question_number"`
	QuestionType   string  `json:"question_type"`
	BBox2D         BBox    `json:"bbox_2d"`
	AnswerBBox2D   BBox    `json:"answer_bbox_2d"`
	Confidence     float64 `json:"confidence"`
	OriginalSize   [2]int  `json:"original_size"`
	ResizedSize    [2]int  `json:"resized_size"`
}

// Validate 校验区域数据：题号非空，两个矩形均满足 x1<x2 且 y1<y2。
func (a QuestionArea) Validate() error {
	if strings.TrimSpace(a.QuestionNumber) == "" {
		return fmt.Errorf("缺少题目编号")
	}
	if err := validBBox(a.BBox2D); err != nil {
		return fmt.Errorf("题目区域坐标无效: %w", err)
	}
	if err := validBBox(a.AnswerBBox2D); err != nil {
		return fmt.Errorf("答题区域坐标无效: %w", err)
	}
	return nil
}

func validBBox(b BBox) error {
	if b[0] >= b[2] || b[1] >= b[3] {
		return fmt.Errorf("x1=%v >= x2=%v 或 y1=%v >= y2=%v", b[0], b[2], b[1], b[3])
	}
	return nil
}

// flexString 兼容AI把题号返回成数字的情况。
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

// flexFloat 兼容AI把置信度返回成字符串的情况。
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type rawArea struct {
	QuestionNumber flexString `json:"question_number"`
	QuestionType   string     `json:"question_type"`
	BBox2D         []float64  `json:"bbox_2d"`
	AnswerBBox2D   []float64  `json:"answer_bbox_2d"`
	Confidence     flexFloat  `json:"confidence"`
}

// ParseDetection 解析区域检测的JSON结果并补全默认值：缺失的答题区域
// 取题目区域下40%，缺失的类型记为 unknown，缺失的置信度记为 0.8。
// data 必须是已去除代码块围栏的纯JSON。
func ParseDetection(data []byte, originalWidth, originalHeight, resizeSize int) ([]QuestionArea, error) {
	var resp struct {
		QuestionAreas []rawArea `json:"question_areas"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("解析题目区域失败: %w", err)
	}

	areas := make([]QuestionArea, 0, len(resp.QuestionAreas))
	for _, raw := range resp.QuestionAreas {
		area := QuestionArea{
			QuestionNumber: string(raw.QuestionNumber),
			QuestionType:   raw.QuestionType,
			Confidence:     float64(raw.Confidence),
			OriginalSize:   [2]int{originalWidth, originalHeight},
			ResizedSize:    [2]int{resizeSize, resizeSize},
		}
		if len(raw.BBox2D) == 4 {
			copy(area.BBox2D[:], raw.BBox2D)
		}
		if len(raw.AnswerBBox2D) == 4 {
			copy(area.AnswerBBox2D[:], raw.AnswerBBox2D)
		} else {
			area.AnswerBBox2D = area.BBox2D.DefaultAnswerBBox()
		}
		if area.QuestionType == "" {
			area.QuestionType = "unknown"
		}
		if area.Confidence == 0 {
			area.Confidence = 0.8
		}
		areas = append(areas, area)
	}
	return areas, nil
}

// ConvertCoordsToOriginal 将resize坐标还原为原图坐标，逐坐标按缩放
// 比例放大后向零取整。尺寸非法时原样返回。
func ConvertCoordsToOriginal(bbox BBox, originalSize, resizedSize [2]int) BBox {
	if originalSize[0] <= 0 || originalSize[1] <= 0 || resizedSize[0] <= 0 || resizedSize[1] <= 0 {
		return bbox
	}
	scaleX := float64(originalSize[0]) / float64(resizedSize[0])
	scaleY := float64(originalSize[1]) / float64(resizedSize[1])
	return BBox{
		math.Trunc(bbox[0] * scaleX),
		math.Trunc(bbox[1] * scaleY),
		math.Trunc(bbox[2] * scaleX),
		math.Trunc(bbox[3] * scaleY),
	}
}

// AreasToOriginal 把所有区域的坐标还原为原图坐标，返回新切片。
// 未携带尺寸信息的区域保持原样。
func AreasToOriginal(areas []QuestionArea) []QuestionArea {
	converted := make([]QuestionArea, len(areas))
	for i, area := range areas {
		c := area
		if area.OriginalSize != [2]int{} && area.ResizedSize != [2]int{} {
			c.BBox2D = ConvertCoordsToOriginal(area.BBox2D, area.OriginalSize, area.ResizedSize)
			c.AnswerBBox2D = ConvertCoordsToOriginal(area.AnswerBBox2D, area.OriginalSize, area.ResizedSize)
		}
		converted[i] = c
	}
	return converted
}

// 批改标记区域的固定宽高（像素）。
const markRegionSize = 100

// MarkPosition 批改标记的落点：x在题目区域水平中点基础上加0~100
// 像素的随机偏移，y取垂直中点。
type MarkPosition struct {
	QuestionNumber string  `json:"question_number"`
	QuestionType   string  `json:"question_type"`
	BBox2D         BBox    `json:"bbox_2d"`
	AnswerBBox2D   BBox    `json:"answer_bbox_2d"`
	X              int     `json:"x"`
	Y              int     `json:"y"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Confidence     float64 `json:"confidence"`
}

// MarkPositions 生成批改标记位置。目标尺寸与检测时的resize尺寸
// 不一致时先把坐标还原为原图坐标；一致时不做任何转换。
func MarkPositions(rng *rand.Rand, imageWidth, imageHeight int, areas []QuestionArea) []MarkPosition {
	if len(areas) == 0 {
		return nil
	}

	converted := areas
	first := areas[0]
	if first.OriginalSize != [2]int{} && first.ResizedSize != [2]int{} &&
		[2]int{imageWidth, imageHeight} != first.ResizedSize {
		converted = AreasToOriginal(areas)
	}

	positions := make([]MarkPosition, 0, len(converted))
	for _, area := range converted {
		x := (area.BBox2D[0]+area.BBox2D[2])/2 + float64(rng.Intn(101))
		y := (area.BBox2D[1] + area.BBox2D[3]) / 2

		confidence := area.Confidence
		if confidence == 0 {
			confidence = 0.5
		}

		positions = append(positions, MarkPosition{
			QuestionNumber: area.QuestionNumber,
			QuestionType:   area.QuestionType,
			BBox2D:         area.BBox2D,
			AnswerBBox2D:   area.AnswerBBox2D,
			X:              int(x),
			Y:              int(y),
			Width:          markRegionSize,
			Height:         markRegionSize,
			Confidence:     confidence,
		})
	}
	return positions
}
