package stats

// 連續次數超過 maxLutStreak 時不走 LUT
const maxLutStreak int = 64

// StreakBuckets
//
// 用來快速定位連續次數 -> StreakReport 位置 O(1)
//
// 請勿修改預設值
//   - 區間: [0,0], [1,1], [2,3), [3,5), [5,8), [8,12), [12,20), [20,+inf)
type StreakBuckets struct {
	edges []int
	names []string
	lut   []int
}

var Streaks *StreakBuckets = newStreakBuckets(
	[]int{0, 1, 2, 3, 5, 8, 12, 20},
	[]string{"[0,0]", "[1,1]", "[2,3)", "[3,5)", "[5,8)", "[8,12)", "[12,20)", "[20,+inf)"},
)

func newStreakBuckets(edges []int, names []string) *StreakBuckets {
	lut := make([]int, maxLutStreak)
	idx := 0
	last := len(edges) - 1
	for i := range lut {
		// 僅在還有更高邊界時才前進 idx，避免越界讀取
		for idx < last && i >= edges[idx+1] {
			idx++
		}
		lut[i] = idx
	}
	return &StreakBuckets{edges: edges, names: names, lut: lut}
}

func (b *StreakBuckets) Names() []string {
	return b.names
}

func (b *StreakBuckets) Len() int {
	return len(b.names)
}

// Index 回傳連續次數 n 所在的桶；負數視為 0。
func (b *StreakBuckets) Index(n int) int {
	if n < 0 {
		n = 0
	}
	if n >= maxLutStreak {
		return len(b.edges) - 1
	}
	return b.lut[n]
}
