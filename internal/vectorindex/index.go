// Package vectorindex 提供一个精确的扁平内积索引。
//
// 向量在写入前需要做 L2 归一化（见 Normalize），此时内积等价于余弦相似度。
// 查询是 O(N·D) 的线性扫描，适用于单用户规模的小语料。
package vectorindex

import (
	"fmt"
	"math"

	"policyqa-go/internal/model"
)

// NoMatch 标记 Search 结果中未填充的位置。
const NoMatch = -1

// normEpsilon 避免零向量归一化时除零。
const normEpsilon = 1e-12

// Hit 是一次命中：Position 为向量在索引中的序号，Score 为内积。
type Hit struct {
	Position int
	Score    float32
}

// Index 是只追加的扁平索引，序号即写入顺序。
type Index struct {
	dim     int
	vectors [][]float32
}

// New 创建一个维度为 dim 的空索引。
func New(dim int) *Index {
	return &Index{dim: dim}
}

// Dim 返回索引维度。
func (i *Index) Dim() int { return i.dim }

// Len 返回向量数量。
func (i *Index) Len() int { return len(i.vectors) }

// Vector 返回第 pos 个向量的拷贝。
func (i *Index) Vector(pos int) []float32 {
	return append([]float32(nil), i.vectors[pos]...)
}

// Add 按输入顺序追加向量，任一向量维度不符则整体拒绝。
func (i *Index) Add(vectors [][]float32) error {
	for n, v := range vectors {
		if len(v) != i.dim {
			return fmt.Errorf("%w: vector %d has dim %d, index dim %d", model.ErrDimensionMismatch, n, len(v), i.dim)
		}
	}
	for _, v := range vectors {
		i.vectors = append(i.vectors, append([]float32(nil), v...))
	}
	return nil
}

// Search 返回与 query 内积最大的 k 个位置，按分数降序；分数相同时序号小的在前。
// 结果长度恒为 k，向量不足时剩余位置的 Position 为 NoMatch。
func (i *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != i.dim {
		return nil, fmt.Errorf("%w: query dim %d, index dim %d", model.ErrDimensionMismatch, len(query), i.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	top := make([]Hit, 0, k)
	for pos, v := range i.vectors {
		score := dot(query, v)
		if len(top) == k && score <= top[k-1].Score {
			continue
		}
		// 插到所有分数 >= score 的命中之后，保证先写入者在并列时胜出
		at := len(top)
		for at > 0 && top[at-1].Score < score {
			at--
		}
		if len(top) < k {
			top = append(top, Hit{})
		}
		copy(top[at+1:], top[at:len(top)-1])
		top[at] = Hit{Position: pos, Score: score}
	}
	for len(top) < k {
		top = append(top, Hit{Position: NoMatch, Score: -math.MaxFloat32})
	}
	return top, nil
}

// Normalize 返回 v 的 L2 归一化拷贝，范数上加 1e-12 防止零向量除零。
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + normEpsilon
	out := make([]float32, len(v))
	for n, x := range v {
		out[n] = float32(float64(x) / norm)
	}
	return out
}

// NormalizeAll 对一批向量做归一化。
func NormalizeAll(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for n, v := range vectors {
		out[n] = Normalize(v)
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float64
	for n := range a {
		s += float64(a[n]) * float64(b[n])
	}
	return float32(s)
}
