package knowledge

import "testing"

func TestAll_CatalogOrder(t *testing.T) {
	points := All()
	if len(points) != 10 {
		t.Fatalf("catalog size = %d, want 10", len(points))
	}
	if points[0].Outline != "有理数加法法则" {
		t.Errorf("first outline = %q", points[0].Outline)
	}
	if points[9].Outline != "科学计数法" {
		t.Errorf("last outline = %q", points[9].Outline)
	}

	// 返回的是副本，修改不影响目录本身
	points[0].Outline = "changed"
	if All()[0].Outline != "有理数加法法则" {
		t.Error("All() must return a copy of the catalog")
	}
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("倒数")
	if !ok {
		t.Fatal("expected 倒数 to exist")
	}
	if p.Detail == "" {
		t.Error("expected non-empty detail")
	}

	if _, ok := Lookup("不存在的知识点"); ok {
		t.Error("expected miss for unknown outline")
	}
}

func TestFindMatching(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single keyword",
			text: "请出几道考查减法的题目",
			want: []string{"有理数减法法则"},
		},
		{
			name: "keyword shared by two points keeps catalog order",
			text: "交换律相关练习",
			want: []string{"加法运算定律", "乘法运算定律"},
		},
		{
			name: "multiple keywords of one point count once",
			text: "加法 同号相加 异号相加",
			want: []string{"有理数加法法则"},
		},
		{
			name: "case insensitive latin keyword",
			text: "科学表示 A×10N 形式",
			want: []string{"科学计数法"},
		},
		{
			name: "no match",
			text: "几何图形的面积",
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FindMatching(tc.text)
			if len(got) != len(tc.want) {
				t.Fatalf("FindMatching(%q) returned %d points, want %d", tc.text, len(got), len(tc.want))
			}
			for i, p := range got {
				if p.Outline != tc.want[i] {
					t.Errorf("match[%d] = %q, want %q", i, p.Outline, tc.want[i])
				}
			}
		})
	}
}
