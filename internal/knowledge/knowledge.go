// Package knowledge 维护七年级《有理数计算》章节的知识点目录。
// 目录在进程启动时固定，运行期只读。
package knowledge

import "strings"

type KnowledgePoint struct {
	Outline  string   `json:"outline"`
	Detail   string   `json:"detail"`
	Keywords []string `json:"keywords"`
}

var catalog = []KnowledgePoint{
	{
		Outline:  "有理数加法法则",
		Detail:   "⑴同号两数相加，取相同的符号，并把绝对值相加。⑵绝对值不相等的异号两数相加，取绝对值较大的加数的符号，并用较大的绝对值减去较小的绝对值。互为相反数的两个数相加得0。⑶一个数同0相加，仍得这个数。",
		Keywords: []string{"加法", "同号相加", "异号相加", "相反数", "绝对值", "加法法则", "有理数加法"},
	},
	{
		Outline:  "加法运算定律",
		Detail:   "（1）加法交换律：两数相加，交换加数的位置，和不变。即a＋b=b＋a（2）加法结合律：在有理数加法中，三个数相加，先把前两个数相加或者先把后两个数相加，和不变。即a＋b＋c=（a＋b）＋c=a＋（b＋c）",
		Keywords: []string{"加法交换律", "加法结合律", "交换律", "结合律", "运算定律"},
	},
	{
		Outline:  "有理数减法法则",
		Detail:   "减法法则：减去一个数，等于加上这个数的相反数。即a－b=a＋（﹣）b",
		Keywords: []string{"减法", "减法法则", "相反数", "有理数减法"},
	},
	{
		Outline:  "有理数乘法法则",
		Detail:   "（1）两数相乘，同号得正，异号得负，并把绝对值相乘。（2）任何数同0相乘，都得0。（3）多个不为0的数相乘，负因数的个数是偶数时，积为正数；负因数的个数是奇数时，积为负数，即先确定符号，再把绝对值相乘，绝对值的积就是积的绝对值。（4）多个数相乘，若其中有因数0，则积等于0；反之，若积为0，则至少有一个因数是0。",
		Keywords: []string{"乘法", "乘法法则", "同号得正", "异号得负", "负因数", "有理数乘法"},
	},
	{
		Outline:  "乘法运算定律",
		Detail:   "（1）乘法交换律：两数相乘，交换因数的位置，积相等。即a×b＝ba（2）乘法结合律：三个数相乘，先把前两个数相乘，或者先把后两个数相乘，积相等。即a×b×c＝﹙a×b﹚×c＝a×﹙b×c﹚。（3）乘法分配律：一个数同两个数的和相乘，等于把这个数分别同这两个数相乘，在把积相加即a×﹙b＋c﹚＝a×b＋a×c。",
		Keywords: []string{"乘法交换律", "乘法结合律", "乘法分配律", "交换律", "结合律", "分配律", "运算定律"},
	},
	{
		Outline:  "倒数",
		Detail:   "（1）定义：乘积为1的两个数互为倒数。（2）性质：负数的倒数还是负数，正数的倒数是正数。注意：① 0 没有倒数；②倒数等于它本身的数为±1。",
		Keywords: []string{"倒数", "互为倒数", "乘积为1", "倒数性质"},
	},
	{
		Outline:  "有理数除法法则",
		Detail:   "（1）除以一个（不等于0）的数，等于乘这个数的倒数。（2）两个数相除，同号得正，异号得负，并把绝对值相除。（3）0除以任何一个不等于0的数，都得0。",
		Keywords: []string{"除法", "除法法则", "倒数", "同号得正", "异号得负", "有理数除法"},
	},
	{
		Outline:  "乘方法则运算",
		Detail:   "（1）正数的任何次幂都是正数（2）负数的奇次幂是负数，负数的偶次幂是正数（3）0的任何正整数次幂都是0",
		Keywords: []string{"乘方", "幂", "奇次幂", "偶次幂", "乘方法则", "幂运算"},
	},
	{
		Outline:  "有理数混合运算",
		Detail:   "（1）先乘方，再乘除，最后加减。（2）同级运算，从左到右的顺序进行。（3）如有括号，先算括号内的运算，按小括号，中括号，大括号依次进行。在进行有理数的运算时，要分两步走：先确定符号，再求值。",
		Keywords: []string{"混合运算", "运算顺序", "乘方", "乘除", "加减", "括号", "运算规则"},
	},
	{
		Outline:  "科学计数法",
		Detail:   "1.科学记数法概念：把一个大于10的数表示成a×10n的形式（其中a 是整数数位只有一位的数，n为正整数）。这种记数的方法叫做科学记数法。﹙1≤|a|＜10﹚注：一个n为数用科学记数法表示为a×10n－1。2.近似数的精确度：两种形式（1）精确到某位或精确到小数点后某位。（2）保留几个有效数字注：对于较大的数取近似数时，结果一般用科学记数法来表示例如：256000（精确到万位）的结果是2.6×105。3.有效数字：从一个数的左边第一个非0数字起，到末尾数字止，所有的数字都是这个数的有效数。",
		Keywords: []string{"科学计数法", "科学记数法", "有效数字", "近似数", "精确度", "a×10n"},
	},
}

// All 返回完整知识点目录，顺序与教学大纲一致。
func All() []KnowledgePoint {
	out := make([]KnowledgePoint, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup 按大纲名精确查找知识点。
func Lookup(outline string) (KnowledgePoint, bool) {
	for _, p := range catalog {
		if p.Outline == outline {
			return p, true
		}
	}
	return KnowledgePoint{}, false
}

// FindMatching 根据文本内容匹配知识点：任一关键词（忽略大小写）出现在
// 文本中即命中，每个知识点最多出现一次，保持目录顺序。
// 仅作为 AI 知识点提取失败时的本地兜底。
func FindMatching(text string) []KnowledgePoint {
	textLower := strings.ToLower(text)

	var matched []KnowledgePoint
	for _, point := range catalog {
		for _, keyword := range point.Keywords {
			if strings.Contains(textLower, strings.ToLower(keyword)) {
				matched = append(matched, point)
				break
			}
		}
	}
	return matched
}
