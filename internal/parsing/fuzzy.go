package parsing

// PartialRatio 计算两段文本的最佳窗口相似度（0-100）：
// 在较长一方的所有等长窗口上取最小编辑距离换算为相似度。
// 按 Unicode 码点比较，多字节文字同样有效。
func PartialRatio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	short := []rune(a)
	long := []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	shortLen := len(short)
	windowCount := len(long) - shortLen + 1
	if windowCount < 1 {
		windowCount = 1
	}
	best := 0
	for i := 0; i < windowCount; i++ {
		window := long[i:min(i+shortLen, len(long))]
		dist := levenshtein(short, window)
		ratio := int(100*(float64(shortLen)-float64(dist))/float64(shortLen) + 0.5)
		if ratio > best {
			best = ratio
		}
		if best == 100 {
			break
		}
	}
	return best
}

// levenshtein 码点级编辑距离，滚动两行数组。
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		copy(prev, curr)
	}
	return prev[len(b)]
}
