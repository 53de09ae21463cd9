// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// ============================================================
// ** 結構宣告 **
// ============================================================

// EstimatorBettors 玩家體驗評估
type EstimatorBettors struct {
	RtpStat     RtpStat
	StreakStat  StreakStat
	SessionStat SessionStat
}

// Rtp敘事
type RtpStat struct {
	ExpMedian PointStat // 描述體驗的中位數
	ExpPerc   ExpPerc   // 描述玩家的分布(對應RTP)
	RtpPerc   RtpPerc   // 描述Rtp的分布(對應多少比例的玩家)
}

// 用玩家體驗分位數視角看: 最差10％玩家的RTP 最差33%玩家的RTP ...
type ExpPerc struct {
	ExpP10 PointStat
	ExpP33 PointStat
	ExpP67 PointStat
	ExpP90 PointStat
}

// 用Rtp分位數視角看玩家: 有多少玩家體驗到了 <=50% RTP ...
type RtpPerc struct {
	Rtp50  PointStat
	Rtp90  PointStat
	Rtp100 PointStat
}

// PointStat 點估計 回傳 估計值 以及信賴區間
type PointStat struct {
	Hat float64
	CI  CI
}

// 連輸敘事: 最長連輸達到 3 / 5 / 8 次以上的玩家比例
type StreakStat struct {
	LossAtLeast3 PointStat
	LossAtLeast5 PointStat
	LossAtLeast8 PointStat
}

// 對應結果敘事
type SessionStat struct {
	Bust  PointStat // 破產
	Alive PointStat // 活到最後
	Ahead PointStat // 結束時餘額高於起始
}

// ============================================================
// ** 對外 : 玩家體驗評估 **
// ============================================================

// EstimatorBettorExp 玩家體驗評估（輸入為每位玩家各自的報表）
//
// 1. RTP 敘事 : 描述玩家大致的RTP分布
//
// 2. Streak 敘事 : 描述玩家遇到長連輸的機率
//
// 3. Session 敘事 : 描述玩家破產離場、活到最後、結束時領先的機率
func EstimatorBettorExp(sts []*SessionReport) *EstimatorBettors {
	// 0. 防禦：空輸入
	n := len(sts)
	out := &EstimatorBettors{}
	if n == 0 {
		return out
	}

	// ------------------------------------------------------------
	// 1) RTP 敘事：收集每位玩家 RTP 並做分位/CI
	// ------------------------------------------------------------
	rtp := make([]float64, n)
	for i, s := range sts {
		s.Done()
		rtp[i] = s.Rtp()
	}

	medHat := quantilePoint(rtp, 0.5)
	medLo, medHi := quantileCI(rtp, 0.5, 0.95)

	p10Hat := quantilePoint(rtp, 0.10)
	p10Lo, p10Hi := quantileCI(rtp, 0.10, 0.95)

	p33Hat := quantilePoint(rtp, 1.0/3.0)
	p33Lo, p33Hi := quantileCI(rtp, 1.0/3.0, 0.95)

	p67Hat := quantilePoint(rtp, 2.0/3.0)
	p67Lo, p67Hi := quantileCI(rtp, 2.0/3.0, 0.95)

	p90Hat := quantilePoint(rtp, 0.90)
	p90Lo, p90Hi := quantileCI(rtp, 0.90, 0.95)

	rtp50Hat, rtp50CI := percentileCIForValue(rtp, 0.50, 0.95)
	rtp90Hat, rtp90CI := percentileCIForValue(rtp, 0.90, 0.95)
	rtp100Hat, rtp100CI := percentileCIForValue(rtp, 1.00, 0.95)

	out.RtpStat = RtpStat{
		ExpMedian: PointStat{Hat: medHat, CI: CI{Lo: medLo, Hi: medHi}},
		ExpPerc: ExpPerc{
			ExpP10: PointStat{Hat: p10Hat, CI: CI{Lo: p10Lo, Hi: p10Hi}},
			ExpP33: PointStat{Hat: p33Hat, CI: CI{Lo: p33Lo, Hi: p33Hi}},
			ExpP67: PointStat{Hat: p67Hat, CI: CI{Lo: p67Lo, Hi: p67Hi}},
			ExpP90: PointStat{Hat: p90Hat, CI: CI{Lo: p90Lo, Hi: p90Hi}},
		},
		RtpPerc: RtpPerc{
			Rtp50:  PointStat{Hat: rtp50Hat, CI: rtp50CI},
			Rtp90:  PointStat{Hat: rtp90Hat, CI: rtp90CI},
			Rtp100: PointStat{Hat: rtp100Hat, CI: rtp100CI},
		},
	}

	// ------------------------------------------------------------
	// 2) Streak 敘事：最長連輸落在 >= 3 / 5 / 8 的桶
	// ------------------------------------------------------------
	i3, i5, i8 := Streaks.Index(3), Streaks.Index(5), Streaks.Index(8)
	var k3, k5, k8 int
	for _, s := range sts {
		idx := longestIdx(s.Streak)
		if idx >= i3 {
			k3++
		}
		if idx >= i5 {
			k5++
		}
		if idx >= i8 {
			k8++
		}
	}
	h3, ci3 := proportionCICP(k3, n, 0.95)
	h5, ci5 := proportionCICP(k5, n, 0.95)
	h8, ci8 := proportionCICP(k8, n, 0.95)
	out.StreakStat = StreakStat{
		LossAtLeast3: PointStat{Hat: h3, CI: ci3},
		LossAtLeast5: PointStat{Hat: h5, CI: ci5},
		LossAtLeast8: PointStat{Hat: h8, CI: ci8},
	}

	// ------------------------------------------------------------
	// 3) Session 敘事：Bust / Alive / Ahead 比例 + CP 95% CI
	// ------------------------------------------------------------
	var bustK, aliveK, aheadK int
	for _, s := range sts {
		if s.Bettor == nil {
			continue
		}
		if s.Bettor.Bust {
			bustK++
		}
		if s.Bettor.Alive {
			aliveK++
		}
		if s.Bettor.Balance > s.Bettor.InitBalance {
			aheadK++
		}
	}

	bustHat, bustCI := proportionCICP(bustK, n, 0.95)
	aliveHat, aliveCI := proportionCICP(aliveK, n, 0.95)
	aheadHat, aheadCI := proportionCICP(aheadK, n, 0.95)

	out.SessionStat = SessionStat{
		Bust:  PointStat{Hat: bustHat, CI: bustCI},
		Alive: PointStat{Hat: aliveHat, CI: aliveCI},
		Ahead: PointStat{Hat: aheadHat, CI: aheadCI},
	}

	return out
}

// longestIdx 回傳單一玩家報表中最長連輸所在的桶（報表只會有一個桶為 1）
func longestIdx(st *StreakReport) int {
	if st == nil {
		return 0
	}
	for i := len(st.LossStreakCollect) - 1; i >= 0; i-- {
		if st.LossStreakCollect[i] > 0 {
			return i
		}
	}
	return 0
}

// ============================================================
// ** 內部統計函數 **
// ============================================================

// Clopper–Pearson exact CI for binomial proportion (k successes out of n)
func proportionCICP(k int, n int, confidence float64) (pHat float64, ci CI) {
	if n == 0 {
		return 0, CI{0, 1}
	}
	alpha := 1 - confidence
	pHat = float64(k) / float64(n)

	// Beta PPF 映射，處理邊界
	if k == 0 {
		ci.Lo = 0
	} else {
		b := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
		ci.Lo = b.Quantile(alpha / 2)
	}
	if k == n {
		ci.Hi = 1
	} else {
		b := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
		ci.Hi = b.Quantile(1 - alpha/2)
	}
	return
}

// 問題：給定樣本 data 與門檻 x0，估計 p = P(X ≤ x0) 的點估計與 CI 區間
// 回傳 (pHat, CI)
func percentileCIForValue(data []float64, x0 float64, confidence float64) (pHat float64, ci CI) {
	n := len(data)
	if n == 0 {
		return 0, CI{Lo: 0, Hi: 0}
	}
	// k = 數到 <= x0 的個數
	k := 0
	for _, v := range data {
		if v <= x0 {
			k++
		}
	}
	return proportionCICP(k, n, confidence)
}

// 想估「第 q 分位」的上下界。做法：把 order statistic 的秩視為二項→Beta 反推 p 範圍，再把 p 轉回樣本索引。
// 回傳 (loValue, hiValue)
func quantileCI(data []float64, q, confidence float64) (float64, float64) {
	n := len(data)
	if n == 0 {
		return 0, 0
	}
	cp := make([]float64, n)
	copy(cp, data)
	sort.Float64s(cp)

	alpha := 1 - confidence
	k := int(q * float64(n))
	if k < 1 {
		k = 1
	} else if k > n-1 {
		k = n - 1
	}

	// 以 CP 思想反推 p 範圍
	bLo := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
	bHi := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
	pLo := bLo.Quantile(alpha / 2)
	pHi := bHi.Quantile(1 - alpha/2)

	li := int(pLo * float64(n))
	ui := int(pHi * float64(n))
	if ui > 0 {
		ui -= 1
	}
	if li < 0 {
		li = 0
	}
	if li > n-1 {
		li = n - 1
	}
	if ui < 0 {
		ui = 0
	}
	if ui > n-1 {
		ui = n - 1
	}
	return cp[li], cp[ui]
}

// quantilePoint returns the empirical quantile point estimate at q.
func quantilePoint(data []float64, q float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	cp := make([]float64, n)
	copy(cp, data)
	sort.Float64s(cp)
	// 最近秩法
	idx := int(q * float64(n))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return cp[idx]
}

// ============================================================
// ** 輸出函數 **
// ============================================================

func (est *EstimatorBettors) Out() {
	fmt.Print(est.String())
}

func (est *EstimatorBettors) String() string {
	var b strings.Builder

	// 1) RTP (Player Experience)
	rtpKeys := []string{
		"Median RTP",
		"P10 RTP",
		"P33 RTP",
		"P67 RTP",
		"P90 RTP",
		"≤50% RTP (bettors)",
		"≤90% RTP (bettors)",
		"≤100% RTP (bettors)",
	}
	rtpMsg := map[string]string{
		"Median RTP":          fmtHatCIpct01(est.RtpStat.ExpMedian.Hat, est.RtpStat.ExpMedian.CI),
		"P10 RTP":             fmtHatCIpct01(est.RtpStat.ExpPerc.ExpP10.Hat, est.RtpStat.ExpPerc.ExpP10.CI),
		"P33 RTP":             fmtHatCIpct01(est.RtpStat.ExpPerc.ExpP33.Hat, est.RtpStat.ExpPerc.ExpP33.CI),
		"P67 RTP":             fmtHatCIpct01(est.RtpStat.ExpPerc.ExpP67.Hat, est.RtpStat.ExpPerc.ExpP67.CI),
		"P90 RTP":             fmtHatCIpct01(est.RtpStat.ExpPerc.ExpP90.Hat, est.RtpStat.ExpPerc.ExpP90.CI),
		"≤50% RTP (bettors)":  fmtHatCIpct01(est.RtpStat.RtpPerc.Rtp50.Hat, est.RtpStat.RtpPerc.Rtp50.CI),
		"≤90% RTP (bettors)":  fmtHatCIpct01(est.RtpStat.RtpPerc.Rtp90.Hat, est.RtpStat.RtpPerc.Rtp90.CI),
		"≤100% RTP (bettors)": fmtHatCIpct01(est.RtpStat.RtpPerc.Rtp100.Hat, est.RtpStat.RtpPerc.Rtp100.CI),
	}
	b.WriteString(fmtTable("RTP (Bettor Experience)", rtpKeys, rtpMsg))

	// 2) Losing streaks
	streakKeys := []string{"≥3 losses in a row", "≥5 losses in a row", "≥8 losses in a row"}
	streakMsg := map[string]string{
		"≥3 losses in a row": fmtHatCIpct01(est.StreakStat.LossAtLeast3.Hat, est.StreakStat.LossAtLeast3.CI),
		"≥5 losses in a row": fmtHatCIpct01(est.StreakStat.LossAtLeast5.Hat, est.StreakStat.LossAtLeast5.CI),
		"≥8 losses in a row": fmtHatCIpct01(est.StreakStat.LossAtLeast8.Hat, est.StreakStat.LossAtLeast8.CI),
	}
	b.WriteString(fmtTable("Losing Streaks", streakKeys, streakMsg))

	// 3) Session Outcome
	sessionKeys := []string{"Bust", "Alive", "Ahead"}
	sessionMsg := map[string]string{
		"Bust":  fmtHatCIpct01(est.SessionStat.Bust.Hat, est.SessionStat.Bust.CI),
		"Alive": fmtHatCIpct01(est.SessionStat.Alive.Hat, est.SessionStat.Alive.CI),
		"Ahead": fmtHatCIpct01(est.SessionStat.Ahead.Hat, est.SessionStat.Ahead.CI),
	}
	b.WriteString(fmtTable("Session Outcome", sessionKeys, sessionMsg))
	return b.String()
}

func fmtPct01(x float64) string {
	return fmt.Sprintf("%.2f%%", x*100)
}

func fmtHatCIpct01(hat float64, ci CI) string {
	return fmt.Sprintf("%s [%s, %s]", fmtPct01(hat), fmtPct01(ci.Lo), fmtPct01(ci.Hi))
}
