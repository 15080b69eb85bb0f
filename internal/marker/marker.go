// Package marker 在学生答题图片上叠加批改标记：判对画绿色对勾，
// 判错画红色叉号，并在标记下方写出落点坐标便于核对。
package marker

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"math_practice_backend/internal/answer"
	"math_practice_backend/internal/grading"
	"math_practice_backend/internal/practice"
	"math_practice_backend/internal/vision"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// 标记符号的边长（像素）。
const defaultMarkSize = 120

// Marker 图片批改标记器。
type Marker struct {
	markSize       int
	checkmarkColor color.RGBA
	crossColor     color.RGBA
	coordTextColor color.RGBA

	checkmark *image.RGBA
	cross     *image.RGBA
}

func New() *Marker {
	m := &Marker{
		markSize:       defaultMarkSize,
		checkmarkColor: color.RGBA{G: 255, A: 255},
		crossColor:     color.RGBA{R: 255, A: 255},
		coordTextColor: color.RGBA{B: 255, A: 255},
	}
	m.checkmark = renderCheckmark(m.markSize, m.checkmarkColor)
	m.cross = renderCross(m.markSize, m.crossColor)
	return m
}

// renderCheckmark 在透明底上画对勾：左起笔、折到底部、挑到右上，
// 两段粗线。
func renderCheckmark(size int, col color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	margin := size / 8
	points := []image.Point{
		{X: margin, Y: size / 2},
		{X: size/2 - margin/2, Y: size - margin},
		{X: size - margin, Y: margin},
	}
	thickness := max(4, size/15)
	for i := 0; i < len(points)-1; i++ {
		drawThickLine(img, points[i], points[i+1], col, thickness)
	}
	return img
}

// renderCross 在透明底上画叉号：两条对角粗线。
func renderCross(size int, col color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	margin := size / 4
	thickness := max(4, size/15)
	drawThickLine(img, image.Pt(margin, margin), image.Pt(size-margin, size-margin), col, thickness)
	drawThickLine(img, image.Pt(size-margin, margin), image.Pt(margin, size-margin), col, thickness)
	return img
}

// drawThickLine 把到线段距离不超过半线宽的像素全部着色。
func drawThickLine(img *image.RGBA, p1, p2 image.Point, col color.RGBA, thickness int) {
	half := float64(thickness) / 2

	minX := min(p1.X, p2.X) - thickness
	maxX := max(p1.X, p2.X) + thickness
	minY := min(p1.Y, p2.Y) - thickness
	maxY := max(p1.Y, p2.Y) + thickness

	bounds := img.Bounds()
	for y := max(minY, bounds.Min.Y); y <= min(maxY, bounds.Max.Y-1); y++ {
		for x := max(minX, bounds.Min.X); x <= min(maxX, bounds.Max.X-1); x++ {
			if distToSegment(float64(x), float64(y), p1, p2) <= half {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

// distToSegment 点到线段的欧氏距离。
func distToSegment(px, py float64, p1, p2 image.Point) float64 {
	x1, y1 := float64(p1.X), float64(p1.Y)
	dx, dy := float64(p2.X)-x1, float64(p2.Y)-y1

	lengthSq := dx*dx + dy*dy
	t := 0.0
	if lengthSq > 0 {
		t = ((px-x1)*dx + (py-y1)*dy) / lengthSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	cx, cy := x1+t*dx, y1+t*dy
	return math.Hypot(px-cx, py-cy)
}

// stamp 把符号按中心点叠加到图上，落点越界时贴边。
func (m *Marker) stamp(dst *image.RGBA, symbol *image.RGBA, x, y int) {
	size := symbol.Bounds().Dx()
	ox := x - size/2
	oy := y - size/2

	ox = max(0, min(ox, dst.Bounds().Dx()-size))
	oy = max(0, min(oy, dst.Bounds().Dy()-size))

	rect := image.Rect(ox, oy, ox+size, oy+size)
	draw.Draw(dst, rect, symbol, image.Point{}, draw.Over)
}

// drawCoordText 在标记下方写出落点坐标。
func (m *Marker) drawCoordText(dst *image.RGBA, x, y int) {
	textY := y + m.markSize/2 + 5
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(m.coordTextColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, textY+basicfont.Face7x13.Ascent),
	}
	d.DrawString(fmt.Sprintf("(%d,%d)", x, y))
}

// MarkImage 按批改结果在图片上画标记并返回标记后的图片。位置数量与
// 答卷题目数量相等时按整体顺序一一对应；不相等或没有答卷时按
// 学生ID+题目类型+章节内序号匹配。返回实际画出的标记数量。
func (m *Marker) MarkImage(src image.Image, results []grading.Result, sheet practice.Sheet, positions []vision.MarkPosition, studentAnswer *answer.Sheet) (*image.RGBA, int) {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)

	if len(positions) == 0 {
		positions = EstimatePositions(bounds.Dx(), bounds.Dy(), sheet)
	}

	marked := 0
	if studentAnswer != nil {
		var questionOrder []string
		for _, section := range studentAnswer.Sections {
			for _, q := range section.Questions {
				if q.ID != "" {
					questionOrder = append(questionOrder, q.ID)
				}
			}
		}

		if len(positions) == len(questionOrder) {
			byID := map[string]grading.Result{}
			for _, r := range results {
				if r.QuestionID != "" {
					byID[r.QuestionID] = r
				}
			}
			for i, questionID := range questionOrder {
				r, ok := byID[questionID]
				if !ok {
					continue
				}
				m.drawMark(dst, positions[i], r.Correct())
				marked++
			}
			return dst, marked
		}
	}

	return dst, m.markByTypeAndOrdinal(dst, results, sheet, positions)
}

// markByTypeAndOrdinal 兜底匹配：批改结果按 学生ID_题目类型_序号
// 建索引，再逐个位置查找。找不到对应结果的位置不画标记。
func (m *Marker) markByTypeAndOrdinal(dst *image.RGBA, results []grading.Result, sheet practice.Sheet, positions []vision.MarkPosition) int {
	studentID := ""
	for _, r := range results {
		if r.StudentID != "" {
			studentID = r.StudentID
			break
		}
	}

	byKey := map[string]grading.Result{}
	for _, r := range results {
		typ, ordinal := sheet.SectionTypeOrdinal(r.QuestionID)
		if ordinal == 0 {
			continue
		}
		byKey[r.StudentID+"_"+typ+"_"+strconv.Itoa(ordinal)] = r
	}

	marked := 0
	for _, pos := range positions {
		key := studentID + "_" + pos.QuestionType + "_" + pos.QuestionNumber
		r, ok := byKey[key]
		if !ok {
			continue
		}
		m.drawMark(dst, pos, r.Correct())
		marked++
	}
	return marked
}

func (m *Marker) drawMark(dst *image.RGBA, pos vision.MarkPosition, correct bool) {
	symbol := m.cross
	if correct {
		symbol = m.checkmark
	}
	m.stamp(dst, symbol, pos.X, pos.Y)
	m.drawCoordText(dst, pos.X, pos.Y)
}

// EstimatePositions 没有检测结果时按题目数量均分图片高度估算位置：
// 标记放在图片右侧八成宽度处、每道题高度带的中间。序号按章节内
// 从1起算，与兜底匹配的键一致。
func EstimatePositions(width, height int, sheet practice.Sheet) []vision.MarkPosition {
	total := sheet.QuestionCount()
	if total == 0 {
		return nil
	}

	questionHeight := height / total
	var positions []vision.MarkPosition
	currentY := 0
	for _, section := range sheet.Sections {
		for i := range section.Questions {
			positions = append(positions, vision.MarkPosition{
				QuestionNumber: strconv.Itoa(i + 1),
				QuestionType:   section.Type,
				X:              int(float64(width) * 0.8),
				Y:              currentY + questionHeight/2,
				Width:          int(float64(width) * 0.15),
				Height:         questionHeight,
				Confidence:     0,
			})
			currentY += questionHeight
		}
	}
	return positions
}
