// Package scoring 实现候选人筛选的评分与排序规则。
package scoring

import (
	"math"
	"sort"

	"hiregenius-go/internal/constants"
	"hiregenius-go/internal/types"
)

// CosineSimilarity 计算两个向量的余弦相似度(-1到1)。
// 维度不一致或任一侧为零向量时返回0
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// QuizScore 按位置比对答案计算测验得分(0-100)。
// 答案与答案键任意一侧为空时得0分；多答的部分不计入。
func QuizScore(answers []string, answerKey []string) float64 {
	if len(answers) == 0 || len(answerKey) == 0 {
		return 0.0
	}

	n := len(answerKey)
	correct := 0
	for i := 0; i < n && i < len(answers); i++ {
		if answers[i] == answerKey[i] {
			correct++
		}
	}
	return float64(correct) / float64(n) * 100.0
}

// FinalScore 计算加权最终得分: 匹配得分与测验得分按固定权重合成
func FinalScore(matchScore, quizScore float64) float64 {
	return constants.MatchScoreWeight*matchScore + constants.QuizScoreWeight*quizScore
}

// ShouldInvite 判断最终得分是否达到面试邀请线(含阈值本身)
func ShouldInvite(finalScore float64) bool {
	return finalScore >= constants.PassThreshold
}

// Rank 按最终得分降序排序候选人条目并赋予1起始的名次。
// 同分时保持入参顺序不变(稳定排序)。
func Rank(entries []types.RankingEntry) []types.RankingEntry {
	ranked := make([]types.RankingEntry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
