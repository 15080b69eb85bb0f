package practice

import (
	"strings"
	"text/template"
)

// sheetTmpl 学生用试卷的 Markdown 模板：章节标题、章节内从1重新编号、
// 选择题选项缩进三格。计算题只输出题干，不带解题步骤。
var sheetTmpl = template.Must(template.New("sheet").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`# {{.Title}}
{{range .Sections}}
## {{.Name}}
{{range $i, $q := .Questions}}
{{inc $i}}. {{$q.Question}}
{{range $q.Choices}}   {{.ID}}. {{.Content}}
{{end}}{{end}}{{end}}`))

// RenderMarkdown 渲染可直接打印的学生用试卷。
func RenderMarkdown(sheet Sheet) (string, error) {
	var b strings.Builder
	if err := sheetTmpl.Execute(&b, sheet); err != nil {
		return "", err
	}
	return b.String(), nil
}
