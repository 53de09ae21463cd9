package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var lang language.Tag = language.English

// 信賴區間
type CI struct {
	Lo float64 `json:"Lo"`
	Hi float64 `json:"Hi"`
}

// SessionReport 下注模擬統計報告
type SessionReport struct {
	Summary *SummaryReport `json:"Summary"`
	Streak  *StreakReport  `json:"Streak"`
	Ledger  *LedgerReport  `json:"Ledger,omitzero"`
	Bettor  *BettorReport  `json:"Bettor,omitzero"`
	isDone  bool
}

// SummaryReport 總覽。金額欄位以 ether（float64）表示，精確值見 *Wei 欄位。
type SummaryReport struct {
	Label          string  `json:"Label"`
	Seed           int64   `json:"Seed"`
	Bettors        int     `json:"Bettors"`
	Flips          int     `json:"Flips"` // 已結算的下注數
	Wins           int     `json:"Wins"`
	Losses         int     `json:"Losses"`
	Rejected       int     `json:"Rejected"` // 因保留額不足被拒絕的下注
	PayoutFailures int     `json:"PayoutFailures"`
	Busts          int     `json:"Busts"`
	TotalStakeWei  string  `json:"TotalStakeWei"`
	TotalPayoutWei string  `json:"TotalPayoutWei"`
	TotalStake     float64 `json:"TotalStake"`
	TotalPayout    float64 `json:"TotalPayout"`
	HousePnL       float64 `json:"HousePnL"`
	HouseEdge      float64 `json:"HouseEdge"`
	WinRate        float64 `json:"WinRate"`
	WinRateCI      CI      `json:"WinRateCI"`
	RTP            float64 `json:"RTP"`
	Std            float64 `json:"Std"`

	MultSum   float64 `json:"MultSum"`   // 每注派彩倍數總和
	MultSqSum float64 `json:"MultSqSum"` // 平方和
}

// StreakReport 每位玩家最長連輸 / 連贏的分布
type StreakReport struct {
	StreakBucket      []string  `json:"StreakBucket"`
	LossStreakCollect []int     `json:"LossStreakCollect"`
	WinStreakCollect  []int     `json:"WinStreakCollect"`
	LossStreakDist    []float64 `json:"LossStreakDist"`
	WinStreakDist     []float64 `json:"WinStreakDist"`
}

// LedgerReport 模擬結束時的帳本對帳結果
type LedgerReport struct {
	TreasuryStart string `json:"TreasuryStart"`
	TreasuryEnd   string `json:"TreasuryEnd"`
	TreasuryWant  string `json:"TreasuryWant"` // start + stake - payout
	LiabilityEnd  string `json:"LiabilityEnd"`
	SupplyStart   string `json:"SupplyStart"` // 所有參與帳戶的餘額總和
	SupplyEnd     string `json:"SupplyEnd"`
	Balanced      bool   `json:"Balanced"`
}

// BettorReport 單一玩家統計（ether）
//
// 只有單一玩家的報表才會有
type BettorReport struct {
	InitBalance float64 `json:"InitBalance"`
	Balance     float64 `json:"Balance"`
	MaxBalance  float64 `json:"MaxBalance"`
	MinBalance  float64 `json:"MinBalance"`
	Bust        bool    `json:"Bust"`
	Alive       bool    `json:"Alive"`
}

// ============================================================
// ** 公開方法 **
// ============================================================

// Done 把累積計數整理成最終統計結果，重複呼叫無副作用。
func (s *SessionReport) Done() {
	if s.isDone {
		return
	}
	sum := s.Summary
	sum.HousePnL = sum.TotalStake - sum.TotalPayout
	if sum.TotalStake > 0 {
		sum.HouseEdge = sum.HousePnL / sum.TotalStake
	}
	sum.WinRate, sum.WinRateCI = proportionCICP(sum.Wins, sum.Flips, 0.95)
	sum.RTP = s.Rtp()
	sum.Std = s.Std()

	if s.Streak != nil {
		s.Streak.LossStreakDist = dist(s.Streak.LossStreakCollect)
		s.Streak.WinStreakDist = dist(s.Streak.WinStreakCollect)
	}
	if s.Bettor != nil {
		s.Bettor.Alive = !s.Bettor.Bust
	}
	s.isDone = true
}

// Rtp 回傳玩家回報率（總派彩 / 總押注）
func (s *SessionReport) Rtp() float64 {
	if s.Summary.Flips == 0 || s.Summary.TotalStake == 0 {
		return 0
	}
	return s.Summary.TotalPayout / s.Summary.TotalStake
}

// Std 回傳單注派彩倍數的樣本標準差
func (s *SessionReport) Std() float64 {
	n := float64(s.Summary.Flips)
	if n < 2 {
		return 0
	}
	variance := (s.Summary.MultSqSum - s.Summary.MultSum*s.Summary.MultSum/n) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (s *SessionReport) WriteWith(w io.Writer, rep SessionReportRender) error {
	s.Done()
	return rep.Write(w, s)
}

// StdOut 以表格輸出總覽與用時
func (s *SessionReport) StdOut(ut time.Duration) {
	s.Done()
	fmt.Print(formatDuration(ut, s.Summary.Flips))
	sk, sm := s.fmtBasic()
	fmt.Println(fmtTable(s.Summary.Label, sk, sm))
}

// ============================================================
// ** 內部方法 **
// ============================================================

func dist(collect []int) []float64 {
	total := 0
	for _, c := range collect {
		total += c
	}
	out := make([]float64, len(collect))
	if total == 0 {
		return out
	}
	for i, c := range collect {
		out[i] = float64(c) / float64(total)
	}
	return out
}

func formatDuration(d time.Duration, flips int) string {
	p := message.NewPrinter(lang)
	if d < 0 {
		d = -d
	}
	sec := d.Seconds()
	if sec <= 0 {
		sec = 1e-9
	}
	fps := int(float64(flips) / sec)
	if sec < 60.0 {
		return p.Sprintf("used: %.2f seconds\nfps : %d flips/sec\n", sec, fps)
	}
	s := int(d.Seconds()) % 60
	m := int(d.Minutes()) % 60
	h := int(d.Hours())
	if h == 0 {
		return p.Sprintf("used: %dm %ds\nfps : %d flips/sec\n", m, s, fps)
	}
	return p.Sprintf("used: %dh:%dm:%ds\nfps : %d flips/sec\n", h, m, s, fps)
}

func (s *SessionReport) fmtBasic() ([]string, map[string]string) {
	p := message.NewPrinter(lang)
	sum := s.Summary
	basic := map[string]string{
		"Seed":            fmt.Sprintf("%d", sum.Seed),
		"Bettors":         p.Sprintf("%d", sum.Bettors),
		"Settled Flips":   p.Sprintf("%d", sum.Flips),
		"Wins / Losses":   p.Sprintf("%d / %d", sum.Wins, sum.Losses),
		"Win Rate":        p.Sprintf("%.2f %%", 100.0*sum.WinRate),
		"Win Rate 95% CI": p.Sprintf("[%.2f%%,%.2f%%]", 100.0*sum.WinRateCI.Lo, 100.0*sum.WinRateCI.Hi),
		"Rejected Flips":  p.Sprintf("%d", sum.Rejected),
		"Payout Failures": p.Sprintf("%d", sum.PayoutFailures),
		"Busts":           p.Sprintf("%d", sum.Busts),
		"Total Stake":     p.Sprintf("%.6f ETH", sum.TotalStake),
		"Total Payout":    p.Sprintf("%.6f ETH", sum.TotalPayout),
		"House PnL":       p.Sprintf("%.6f ETH", sum.HousePnL),
		"House Edge":      p.Sprintf("%.2f %%", 100.0*sum.HouseEdge),
		"RTP":             p.Sprintf("%.2f %%", 100.0*sum.RTP),
		"STD":             p.Sprintf("%.3f", sum.Std),
	}
	keys := []string{"Seed", "Bettors", "Settled Flips", "Wins / Losses", "Win Rate", "Win Rate 95% CI", "Rejected Flips", "Payout Failures", "Busts", "Total Stake", "Total Payout", "House PnL", "House Edge", "RTP", "STD"}
	if l := s.Ledger; l != nil {
		basic["Treasury End"] = l.TreasuryEnd
		basic["Liability End"] = l.LiabilityEnd
		basic["Ledger Balanced"] = fmt.Sprintf("%t", l.Balanced)
		keys = append(keys, "Treasury End", "Liability End", "Ledger Balanced")
	}
	return keys, basic
}

func fmtTable(title string, keys []string, msg map[string]string) string {
	p := message.NewPrinter(lang)
	maxKeyLen := 0
	maxValLen := 0
	for k, m := range msg {
		if w := runewidth.StringWidth(k); w > maxKeyLen {
			maxKeyLen = w
		}
		if w := runewidth.StringWidth(m); w > maxValLen {
			maxValLen = w
		}
	}
	maxKeyLen += 2
	maxValLen += 2

	divider := "+" + strings.Repeat("-", maxKeyLen) + "+" + strings.Repeat("-", maxValLen) + "+\n"
	top := "+" + strings.Repeat("-", maxKeyLen+1+maxValLen) + "+\n"

	totalInner := maxKeyLen + maxValLen + 1
	titleW := runewidth.StringWidth(title)
	if titleW > totalInner {
		title = runewidth.Truncate(title, totalInner, "")
		titleW = runewidth.StringWidth(title)
	}

	left := (totalInner - titleW) / 2
	right := totalInner - titleW - left

	fmtStr := top
	fmtStr += p.Sprintf("|%s%s%s|\n", blank(left), title, blank(right))
	fmtStr += divider
	for _, k := range keys {
		fmtStr += p.Sprintf("| %s%s | %s%s |\n", k, blank(maxKeyLen-2-runewidth.StringWidth(k)), msg[k], blank(maxValLen-2-runewidth.StringWidth(msg[k])))
	}
	fmtStr += divider

	return fmtStr
}

func blank(w int) string {
	if w < 1 {
		return ""
	}
	return strings.Repeat(" ", w)
}
